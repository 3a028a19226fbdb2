package backend

import (
	"context"
	"net/http"
	"time"
)

// AuthSession is the token pair the hosted service issues on sign-in,
// sign-up, and refresh.
type AuthSession struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// ExpiresAt resolves the relative expiry against a reference time.
func (s *AuthSession) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(s.ExpiresIn) * time.Second)
}

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges credentials for a token pair. Bad credentials come back
// as ErrInvalidCredentials, not as a transport failure.
func (c *Client) SignIn(ctx context.Context, email, password string) (*AuthSession, error) {
	var sess AuthSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "",
		credentialsReq{Email: email, Password: password}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// SignUp registers a user. The hosted service signs the new user in
// immediately, so a token pair comes back on success.
func (c *Client) SignUp(ctx context.Context, email, password string) (*AuthSession, error) {
	var sess AuthSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", "",
		credentialsReq{Email: email, Password: password}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// RefreshSession trades a refresh token for a fresh token pair.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*AuthSession, error) {
	var sess AuthSession
	err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "",
		struct {
			RefreshToken string `json:"refresh_token"`
		}{RefreshToken: refreshToken}, &sess)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// RequestPasswordReset asks the hosted service to email a reset link. It
// succeeds whether or not the address is registered.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/recover", "",
		struct {
			Email string `json:"email"`
		}{Email: email}, nil)
}

// UpdatePassword sets a new password for the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken,
		struct {
			Password string `json:"password"`
		}{Password: newPassword}, nil)
}
