package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/groundplan/client/internal/logging"
	"github.com/groundplan/client/internal/rest"
)

const authPrefix = "/api/v1/auth"

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrPasswordLength   = errors.New("password must be 8 to 128 characters")
	ErrNoRefreshToken   = errors.New("no refresh token available")
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Client drives the credential lifecycle against the auth endpoints.
type Client struct {
	rest  *rest.Client
	store *Store
	log   *logging.Logger
}

// NewClient binds the auth endpoints to a transport and a store.
func NewClient(rc *rest.Client, store *Store, log *logging.Logger) *Client {
	return &Client{rest: rc, store: store, log: log.Named("auth")}
}

// Register creates an account. The caller still needs to Login.
func (c *Client) Register(ctx context.Context, email, password string) (rest.UserResponse, error) {
	if strings.TrimSpace(email) == "" {
		return rest.UserResponse{}, ErrEmailRequired
	}
	if n := len(password); n < 8 || n > 128 {
		return rest.UserResponse{}, ErrPasswordLength
	}

	req, err := c.rest.Request(ctx)
	if err != nil {
		return rest.UserResponse{}, err
	}

	resp, err := c.rest.Do("auth.register", func() (*resty.Response, error) {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(registerRequest{Email: email, Password: password}).
			Post(authPrefix + "/register")
	})
	if err != nil {
		return rest.UserResponse{}, err
	}
	return rest.Parse[rest.UserResponse](resp)
}

// Login exchanges credentials for a token pair and stores it along
// with the account identity.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}

	req, err := c.rest.Request(ctx)
	if err != nil {
		return err
	}

	resp, err := c.rest.Do("auth.login", func() (*resty.Response, error) {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(loginRequest{Email: email, Password: password}).
			Post(authPrefix + "/login")
	})
	if err != nil {
		return err
	}

	tokens, err := rest.Parse[rest.TokenResponse](resp)
	if err != nil {
		return err
	}

	c.store.SetTokens(tokens.AccessToken, tokens.RefreshToken)
	c.store.SetIdentity(email)
	c.log.Info("signed in")
	return nil
}

// Refresh rotates the token pair using the stored refresh token. A
// rejected refresh token means the credentials are dead, so the store
// is cleared and the caller has to sign in again.
func (c *Client) Refresh(ctx context.Context) error {
	refresh, ok := c.store.RefreshToken()
	if !ok {
		return ErrNoRefreshToken
	}

	req, err := c.rest.Request(ctx)
	if err != nil {
		return err
	}

	resp, err := c.rest.Do("auth.refresh", func() (*resty.Response, error) {
		return req.
			SetHeader("Content-Type", "application/json").
			SetBody(refreshRequest{RefreshToken: refresh}).
			Post(authPrefix + "/refresh")
	})
	if err != nil {
		if rest.IsStatus(err, http.StatusUnauthorized) {
			c.store.Clear()
		}
		return err
	}

	tokens, err := rest.Parse[rest.TokenResponse](resp)
	if err != nil {
		return err
	}

	c.store.SetTokens(tokens.AccessToken, tokens.RefreshToken)
	c.log.Debug("token pair rotated")
	return nil
}

// Logout drops the stored credentials.
func (c *Client) Logout() {
	c.store.Clear()
}
