// Package portainer is a minimal client for the Portainer HTTP API. HTTPS
// connections are established through a sailor.Guard so servers with
// self-signed certificates can be trusted on first use.
package portainer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sensiblebit/sailor"
	"github.com/sensiblebit/sailor/internal"
)

// UserAgent is sent with every request.
const UserAgent = "Mozilla/5.0 (compatible; Sailor; +https://github.com/baileyherbert/sailor)"

// MinimumVersion is the oldest Portainer release with API access tokens.
const MinimumVersion = "2.11.0"

// ErrUnsupportedVersion is returned when the server predates access tokens.
var ErrUnsupportedVersion = fmt.Errorf("sailor requires a portainer version of at least %s", MinimumVersion)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	// Message is the server's JSON "message" field, when present.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("received erroneous status code %d from the server", e.StatusCode)
}

// Client talks to one Portainer server.
type Client struct {
	baseURL string
	host    string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the access token sent as X-API-Key.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the HTTP client, including its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the server at rawURL. HTTPS connections are
// dialed through guard; when guard is nil the default transport is used.
func NewClient(rawURL string, guard *sailor.Guard, opts ...Option) (*Client, error) {
	base, host, err := internal.ParseServerURL(rawURL)
	if err != nil {
		return nil, err
	}
	c := &Client{baseURL: base, host: host, http: &http.Client{}}
	if guard != nil {
		c.http.Transport = guard.Transport()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// URL returns the normalized base URL of the server.
func (c *Client) URL() string { return c.baseURL }

// Host returns the server's host[:port].
func (c *Client) Host() string { return c.host }

// Token returns the current access token.
func (c *Client) Token() string { return c.token }

// SetToken replaces the access token.
func (c *Client) SetToken(token string) { c.token = token }

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	// jsonBody is marshaled as the request body when set.
	jsonBody any
	// body is sent as-is with contentType when set.
	body        io.Reader
	contentType string
	// noAuth suppresses the X-API-Key header.
	noAuth bool
	// bearer is sent as an Authorization header when set.
	bearer string
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + "/api/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// send performs r and returns the response for any 2xx status. The caller
// owns the response body.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	body, contentType := r.body, r.contentType
	if r.jsonBody != nil {
		data, err := json.Marshal(r.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	target := c.endpoint(r.path, r.query)
	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if !r.noAuth && c.token != "" {
		req.Header.Set("X-API-Key", c.token)
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}

	slog.Debug("request", "method", r.method, "url", target)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, target, err)
	}
	slog.Debug("response", "method", r.method, "url", target, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, readAPIError(resp)
	}
	return resp, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	text, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	slog.Debug("error response", "status", resp.StatusCode, "body", string(text))

	if bytes.HasPrefix(text, []byte("{")) {
		var payload struct {
			Message any `json:"message"`
		}
		if json.Unmarshal(text, &payload) == nil {
			if msg, ok := payload.Message.(string); ok {
				apiErr.Message = msg
			}
		}
	}
	return apiErr
}

// call performs r and decodes a JSON response into out.
func (c *Client) call(ctx context.Context, r request, out any) error {
	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", r.path, err)
	}
	return nil
}

// LoginMethod returns the authentication method the server is configured for.
func (c *Client) LoginMethod(ctx context.Context) (AuthenticationMethod, error) {
	var settings publicSettings
	if err := c.call(ctx, request{method: http.MethodGet, path: "/settings/public", noAuth: true}, &settings); err != nil {
		return 0, err
	}
	method := AuthenticationMethod(settings.AuthenticationMethod)
	if !method.Valid() {
		return 0, fmt.Errorf("unrecognized authentication method %d", settings.AuthenticationMethod)
	}
	return method, nil
}

// Authenticate exchanges a username and password for a session JWT.
func (c *Client) Authenticate(ctx context.Context, username, password string) (string, error) {
	var resp authenticateResponse
	err := c.call(ctx, request{
		method:   http.MethodPost,
		path:     "/auth",
		jsonBody: map[string]string{"username": username, "password": password},
		noAuth:   true,
	}, &resp)
	if err != nil {
		return "", err
	}
	slog.Debug("logged in with username and password")
	return resp.JWT, nil
}

// UserProfile returns the current user. When jwt is set it authenticates the
// request instead of the access token.
func (c *Client) UserProfile(ctx context.Context, jwt string) (*User, error) {
	var user User
	err := c.call(ctx, request{method: http.MethodGet, path: "/users/me", noAuth: jwt != "", bearer: jwt}, &user)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Message, "Invalid user identifier") {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedVersion, err)
		}
		return nil, err
	}
	return &user, nil
}

// CreateAccessToken creates a persistent API key for the user behind jwt.
// The password is required again by the server to confirm the request.
func (c *Client) CreateAccessToken(ctx context.Context, jwt, password string) (*AccessToken, error) {
	profile, err := c.UserProfile(ctx, jwt)
	if err != nil {
		return nil, err
	}

	description := TokenDescription()
	slog.Debug("creating access token", "description", description)

	var resp accessTokenResponse
	err = c.call(ctx, request{
		method:   http.MethodPost,
		path:     fmt.Sprintf("/users/%d/tokens", profile.ID),
		jsonBody: map[string]string{"description": description, "password": password},
		noAuth:   true,
		bearer:   jwt,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("creating access token: %w", err)
	}
	return &AccessToken{Username: profile.Username, Token: resp.RawAPIKey}, nil
}

// Endpoints lists the environments visible to the current user.
func (c *Client) Endpoints(ctx context.Context) ([]Endpoint, error) {
	var endpoints []Endpoint
	if err := c.call(ctx, request{method: http.MethodGet, path: "/endpoints"}, &endpoints); err != nil {
		return nil, fmt.Errorf("listing endpoints: %w", err)
	}
	return endpoints, nil
}

// Stacks lists the stacks visible to the current user.
func (c *Client) Stacks(ctx context.Context) ([]Stack, error) {
	var stacks []Stack
	if err := c.call(ctx, request{method: http.MethodGet, path: "/stacks"}, &stacks); err != nil {
		return nil, fmt.Errorf("listing stacks: %w", err)
	}
	return stacks, nil
}

// PullImage pulls image on the given endpoint's Docker daemon and renders the
// progress stream to w.
func (c *Client) PullImage(ctx context.Context, endpointID int, image string, w io.Writer) error {
	name, tag := splitImageTag(image)
	query := url.Values{"fromImage": {name}}
	if tag != "" {
		query.Set("tag", tag)
	}
	resp, err := c.send(ctx, request{
		method: http.MethodPost,
		path:   fmt.Sprintf("/endpoints/%d/docker/images/create", endpointID),
		query:  query,
	})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", image, err)
	}
	return sailor.RenderBuildLog(ctx, resp.Body, w)
}

// BuildImage builds an image from a tar build context on the given endpoint
// and renders the build output to w.
func (c *Client) BuildImage(ctx context.Context, endpointID int, buildContext io.Reader, opts BuildOptions, w io.Writer) error {
	query := url.Values{}
	for _, tag := range opts.Tags {
		query.Add("t", tag)
	}
	if opts.Dockerfile != "" {
		query.Set("dockerfile", opts.Dockerfile)
	}
	if opts.Pull {
		query.Set("pull", "1")
	}
	if opts.NoCache {
		query.Set("nocache", "1")
	}

	resp, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/endpoints/%d/docker/build", endpointID),
		query:       query,
		body:        buildContext,
		contentType: "application/x-tar",
	})
	if err != nil {
		return fmt.Errorf("starting build: %w", err)
	}
	return sailor.RenderBuildLog(ctx, resp.Body, w)
}

// splitImageTag splits "name:tag" on the last colon that is not part of a
// registry host:port. Digests are left in the name.
func splitImageTag(image string) (name, tag string) {
	if strings.Contains(image, "@") {
		return image, ""
	}
	idx := strings.LastIndex(image, ":")
	if idx < 0 || strings.Contains(image[idx+1:], "/") {
		return image, ""
	}
	return image[:idx], image[idx+1:]
}
