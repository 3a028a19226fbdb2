// Package backend is the thin HTTP client for the hosted service that owns
// authentication and weight entry storage. It wraps every call in a
// {data, error} style result: expected failures come back as sentinel
// errors, never panics.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashmarin/weighttrack/internal/domain/entry"
)

var (
	// ErrConfig marks authorization failures caused by the gateway's own
	// configuration (bad URL, rejected API key). The UI routes these to the
	// diagnostic view instead of showing a generic failure.
	ErrConfig = errors.New("hosted service configuration error")

	ErrInvalidCredentials = errors.New("email or password is invalid")
	ErrUserExists         = errors.New("user already exists")
	ErrUnauthorized       = errors.New("unauthorized")
)

// APIError is an error response from the hosted service that does not map to
// one of the sentinel errors above.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hosted service returned %d (%s): %s", e.Status, e.Code, e.Message)
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Client)

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithJWTSecret enables signature verification of access tokens. Without it
// claims are parsed unverified; the hosted service re-checks the token on
// every data call either way.
func WithJWTSecret(secret string) Option {
	return func(c *Client) {
		c.jwtSecret = secret
	}
}

type Client struct {
	baseURL   string
	apiKey    string
	jwtSecret string
	http      Doer
	logger    *slog.Logger
	configErr error
}

// NewClient never fails: a misconfigured client is still constructed so the
// diagnostic endpoint can report what is wrong, but every call on it returns
// ErrConfig until the configuration is fixed.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:    strings.TrimSpace(apiKey),
		http:      &http.Client{Timeout: 15 * time.Second},
		logger:    slog.Default(),
		configErr: verifyLocalConfig(baseURL, apiKey),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func verifyLocalConfig(baseURL, apiKey string) error {
	var problems []string

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		problems = append(problems, "backend URL is missing or empty")
	} else if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		problems = append(problems, "backend URL must start with http:// or https://")
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		problems = append(problems, "backend API key is missing or empty")
	} else if len(apiKey) < 20 {
		problems = append(problems, "backend API key appears to be invalid (too short)")
	}

	if len(problems) > 0 {
		return errors.Join(errors.New(strings.Join(problems, "; ")), ErrConfig)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if c.configErr != nil {
		return c.configErr
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hosted service unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil {
			eb = errorBody{Error: "unknown", Message: resp.Status}
		}
		c.logger.Debug("hosted service call failed",
			"method", method, "path", path, "status", resp.StatusCode, "code", eb.Error)
		return mapError(resp.StatusCode, eb)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func mapError(status int, eb errorBody) error {
	apiErr := &APIError{Status: status, Code: eb.Error, Message: eb.Message}

	switch eb.Error {
	case "invalid_api_key":
		return errors.Join(apiErr, ErrConfig)
	case "invalid_credentials":
		return errors.Join(apiErr, ErrInvalidCredentials)
	case "user_exists":
		return errors.Join(apiErr, ErrUserExists)
	case "not_found":
		return errors.Join(apiErr, entry.ErrEntryNotFound)
	case "date_conflict":
		return errors.Join(apiErr, entry.ErrDateConflict)
	}

	if status == http.StatusUnauthorized {
		return errors.Join(apiErr, ErrUnauthorized)
	}
	return apiErr
}

// VerifyResult is the diagnostic view of the hosted service connection.
type VerifyResult struct {
	OK          bool   `json:"ok"`
	ConfigError bool   `json:"config_error"`
	Error       string `json:"error,omitempty"`
	URL         string `json:"url"`
	MaskedKey   string `json:"api_key"`
}

// Verify checks the local configuration and then probes the hosted service,
// distinguishing configuration problems from transient transport failures.
func (c *Client) Verify(ctx context.Context) VerifyResult {
	res := VerifyResult{
		URL:       c.baseURL,
		MaskedKey: maskKey(c.apiKey),
	}

	if c.configErr != nil {
		res.ConfigError = true
		res.Error = c.configErr.Error()
		return res
	}

	if err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil {
		res.ConfigError = errors.Is(err, ErrConfig)
		res.Error = err.Error()
		return res
	}

	res.OK = true
	return res
}

// maskKey keeps the first six and last four characters, like the original
// diagnostic screen, so a key can be recognized without being disclosed.
func maskKey(key string) string {
	if len(key) <= 10 {
		return "not configured"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
