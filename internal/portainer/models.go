package portainer

import (
	"fmt"
	"os"
	"os/user"
)

// AuthenticationMethod is the login mechanism a server is configured for.
type AuthenticationMethod int

// Authentication methods reported by /api/settings/public.
const (
	AuthInternal AuthenticationMethod = 1
	AuthLDAP     AuthenticationMethod = 2
	AuthOAuth    AuthenticationMethod = 3
)

// Valid reports whether m is a known method.
func (m AuthenticationMethod) Valid() bool {
	return m >= AuthInternal && m <= AuthOAuth
}

func (m AuthenticationMethod) String() string {
	switch m {
	case AuthInternal:
		return "internal"
	case AuthLDAP:
		return "ldap"
	case AuthOAuth:
		return "oauth"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// EndpointType is the kind of environment behind an endpoint.
type EndpointType int

func (t EndpointType) String() string {
	switch t {
	case 1:
		return "docker"
	case 2:
		return "agent"
	case 3:
		return "azure"
	case 4:
		return "edge-agent"
	case 5:
		return "kubernetes"
	case 6:
		return "kubernetes-agent"
	case 7:
		return "kubernetes-edge-agent"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Endpoint is a Portainer environment.
type Endpoint struct {
	ID   int          `json:"Id"`
	Name string       `json:"Name"`
	Type EndpointType `json:"Type"`
	URL  string       `json:"URL"`
}

// Stack is a deployed compose or swarm stack.
type Stack struct {
	ID           int    `json:"Id"`
	Name         string `json:"Name"`
	Type         int    `json:"Type"`
	EndpointID   int    `json:"EndpointId"`
	Status       int    `json:"Status"`
	EntryPoint   string `json:"EntryPoint"`
	ProjectPath  string `json:"ProjectPath"`
	CreationDate int64  `json:"CreationDate"`
}

// StatusString renders the stack status as shown in the Portainer UI.
func (s Stack) StatusString() string {
	switch s.Status {
	case 1:
		return "active"
	case 2:
		return "inactive"
	default:
		return "unknown"
	}
}

// User is the authenticated Portainer user.
type User struct {
	ID       int    `json:"Id"`
	Username string `json:"Username"`
	Role     int    `json:"Role"`
}

// AccessToken is a newly created API key and the user it belongs to.
type AccessToken struct {
	Username string
	Token    string
}

// BuildOptions are the image build parameters.
type BuildOptions struct {
	Tags       []string
	Dockerfile string
	Pull       bool
	NoCache    bool
}

type publicSettings struct {
	AuthenticationMethod int `json:"AuthenticationMethod"`
}

type authenticateResponse struct {
	JWT string `json:"jwt"`
}

type accessTokenResponse struct {
	RawAPIKey string `json:"rawAPIKey"`
}

// TokenDescription identifies tokens created by this machine.
func TokenDescription() string {
	username := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("Sailor CLI for %s@%s (auto-created)", username, hostname)
}
