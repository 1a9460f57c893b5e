package portainer

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Credentials are login details supplied up front by flags or environment.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// Asker collects whatever Credentials did not supply.
type Asker interface {
	Input(ctx context.Context, label, def string) (string, error)
	Secret(ctx context.Context, label string) (string, error)
	Select(ctx context.Context, label string, options []string) (int, error)
}

// Session is the outcome of a successful login.
type Session struct {
	Username string
	Token    string
}

// Login authenticates c and leaves it holding a working access token.
//
// A supplied token is verified against the user profile. Otherwise the
// server's authentication method decides: internal authentication with a
// username or password (supplied, or chosen at the prompt) exchanges them for
// a new access token; every other case asks for an access token.
func Login(ctx context.Context, c *Client, creds Credentials, ask Asker) (*Session, error) {
	if creds.Token != "" {
		return loginWithToken(ctx, c, creds.Token)
	}

	method, err := c.LoginMethod(ctx)
	if err != nil {
		return nil, err
	}
	slog.Debug("portainer reported configured login method", "method", method)

	if method == AuthInternal {
		usePassword := creds.Username != "" || creds.Password != ""
		if !usePassword {
			choice, err := ask.Select(ctx, "How would you like to log in?", []string{"Username and password", "Access token"})
			if err != nil {
				return nil, err
			}
			usePassword = choice == 0
		}
		if usePassword {
			return loginWithPassword(ctx, c, creds, ask)
		}
	}

	token, err := ask.Secret(ctx, "Access token")
	if err != nil {
		return nil, err
	}
	return loginWithToken(ctx, c, strings.TrimSpace(token))
}

func loginWithPassword(ctx context.Context, c *Client, creds Credentials, ask Asker) (*Session, error) {
	username, password := creds.Username, creds.Password
	var err error
	if username == "" {
		if username, err = ask.Input(ctx, "Username", ""); err != nil {
			return nil, err
		}
	}
	if password == "" {
		if password, err = ask.Secret(ctx, "Password"); err != nil {
			return nil, err
		}
	}
	if username == "" || password == "" {
		return nil, errors.New("a username and password are required")
	}

	jwt, err := c.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	token, err := c.CreateAccessToken(ctx, jwt, password)
	if err != nil {
		return nil, err
	}
	c.SetToken(token.Token)
	slog.Info("created an access token", "username", token.Username)
	return &Session{Username: token.Username, Token: token.Token}, nil
}

// loginWithToken verifies token, restoring the previous token on failure.
func loginWithToken(ctx context.Context, c *Client, token string) (*Session, error) {
	if token == "" {
		return nil, errors.New("an access token is required")
	}
	previous := c.Token()
	c.SetToken(token)

	profile, err := c.UserProfile(ctx, "")
	if err != nil {
		c.SetToken(previous)
		return nil, err
	}
	slog.Info("logged in with access token", "username", profile.Username)
	return &Session{Username: profile.Username, Token: token}, nil
}
