package internal

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrServerExists is returned when saving a registration whose URL and
	// username, or whose name, are already taken.
	ErrServerExists = errors.New("a server with that configuration already exists")

	// ErrServerNotFound is returned when no registration matches a lookup.
	ErrServerNotFound = errors.New("server not found")
)

var schemePrefix = regexp.MustCompile(`(?i)^https?:`)

// Registration is a saved Portainer server and the credentials used for it.
type Registration struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	URL       string    `json:"url"`
	Username  string    `json:"username"`
	Token     string    `json:"token,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParseServerURL validates a user-supplied server address and returns its
// normalized base URL (no trailing slash) and lowercase host[:port]. Input
// without an http or https scheme is treated as http.
func ParseServerURL(raw string) (base, host string, err error) {
	raw = strings.TrimSpace(raw)
	if !schemePrefix.MatchString(raw) {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", "", fmt.Errorf("invalid URL %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String(), u.Host, nil
}

// Servers returns every saved registration in insertion order.
func (s *ConfigStore) Servers() ([]Registration, error) {
	servers := []Registration{}
	if _, err := s.Get(KeyServers, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func matchesServer(reg Registration, query string) bool {
	if reg.ID == query || strings.EqualFold(reg.Name, query) {
		return true
	}
	if base, _, err := ParseServerURL(query); err == nil && base == reg.URL {
		return true
	}
	return false
}

// FindServer returns the registration whose ID, name, or URL matches query.
// Names are compared case-insensitively.
func (s *ConfigStore) FindServer(query string) (*Registration, error) {
	servers, err := s.Servers()
	if err != nil {
		return nil, err
	}
	for _, reg := range servers {
		if matchesServer(reg, query) {
			return &reg, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrServerNotFound, query)
}

// SaveServer inserts reg when its ID is empty, assigning a new ID and
// creation time, and otherwise replaces the registration with the same ID.
// Name defaults to Host.
func (s *ConfigStore) SaveServer(reg *Registration) error {
	if reg.URL == "" || reg.Username == "" {
		return errors.New("registration requires a URL and a username")
	}
	if reg.Name == "" {
		reg.Name = reg.Host
	}

	servers, err := s.Servers()
	if err != nil {
		return err
	}
	for _, other := range servers {
		if other.ID == reg.ID {
			continue
		}
		if other.URL == reg.URL && strings.EqualFold(other.Username, reg.Username) {
			return ErrServerExists
		}
		if strings.EqualFold(other.Name, reg.Name) {
			return fmt.Errorf("%w: a server named %q is already saved", ErrServerExists, reg.Name)
		}
	}

	if reg.ID == "" {
		reg.ID = uuid.NewString()
		reg.CreatedAt = time.Now().UTC()
		servers = append(servers, *reg)
	} else {
		idx := slices.IndexFunc(servers, func(r Registration) bool { return r.ID == reg.ID })
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrServerNotFound, reg.ID)
		}
		servers[idx] = *reg
	}

	if err := s.Set(KeyServers, servers); err != nil {
		return fmt.Errorf("saving servers: %w", err)
	}
	return nil
}

// RemoveServer deletes the registration matching query and returns it.
func (s *ConfigStore) RemoveServer(query string) (*Registration, error) {
	servers, err := s.Servers()
	if err != nil {
		return nil, err
	}
	idx := slices.IndexFunc(servers, func(r Registration) bool { return matchesServer(r, query) })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, query)
	}
	removed := servers[idx]
	if err := s.Set(KeyServers, slices.Delete(servers, idx, idx+1)); err != nil {
		return nil, fmt.Errorf("saving servers: %w", err)
	}
	return &removed, nil
}
