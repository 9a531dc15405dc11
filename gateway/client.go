// Package gateway holds the implementations of login.Gateway: a client for
// the JSON authentication endpoint and an adapter for Ory Kratos.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"login-handshake/login"
)

const (
	// DefaultPath is appended to the base URL when ClientConfig.Path is empty.
	DefaultPath    = "/authenticate"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 1 << 20
	challengeField   = "mfaToken"
)

// TokenVerifier checks the bearer token of a completed session.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Path    string
	// HTTPClient overrides the transport. Its Timeout bounds every call.
	HTTPClient *http.Client
	Timeout    time.Duration
	// Verifier, when set, must accept the session token before a session
	// outcome is returned.
	Verifier TokenVerifier
	Logger   *zap.Logger
}

// Client speaks the JSON wire contract of the authentication service:
// POST {"strategy": ..., ...payload}, answered by a session object or by
// {"mfaToken": "..."}.
type Client struct {
	endpoint string
	http     *http.Client
	verifier TokenVerifier
	logger   *zap.Logger
}

var _ login.Gateway = (*Client)(nil)

func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("gateway: base URL is required")
	}
	path := cfg.Path
	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: base + path,
		http:     httpClient,
		verifier: cfg.Verifier,
		logger:   logger.Named("gateway"),
	}, nil
}

// Login sends one authentication request. Every failure is returned as an
// *Error.
func (c *Client) Login(ctx context.Context, strategy string, payload login.Payload) (login.Outcome, error) {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body["strategy"] = strategy

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Message: MessageProtocol, Err: fmt.Errorf("encode request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("authentication request failed", zap.String("strategy", strategy), zap.Error(err))
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, transportError(err)
	}
	if len(raw) > maxResponseBytes {
		return nil, protocolError("response exceeds %d bytes", maxResponseBytes)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Info("authentication rejected",
			zap.String("strategy", strategy),
			zap.Int("status", resp.StatusCode),
		)
		return nil, rejectedError(resp.StatusCode, errorMessage(raw))
	}

	outcome, gerr := decodeOutcome(raw)
	if gerr != nil {
		c.logger.Warn("malformed authentication response", zap.String("strategy", strategy), zap.Error(gerr.Err))
		return nil, gerr
	}
	if s, ok := outcome.(login.SessionOutcome); ok && c.verifier != nil {
		if err := c.verifier.Verify(ctx, s.Session.Token); err != nil {
			c.logger.Warn("session token rejected", zap.Error(err))
			return nil, &Error{Message: MessageUnverified, Err: fmt.Errorf("%w: %v", ErrUnverified, err)}
		}
	}
	return outcome, nil
}

// decodeOutcome is the only place where a response body is classified. The
// presence of mfaToken decides the variant, even next to session fields.
func decodeOutcome(raw []byte) (login.Outcome, *Error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, protocolError("response is not a JSON object: %v", err)
	}
	if fields == nil {
		return nil, protocolError("response is null")
	}

	if rawToken, ok := fields[challengeField]; ok {
		var token string
		if err := json.Unmarshal(rawToken, &token); err != nil {
			return nil, protocolError("%s is not a string", challengeField)
		}
		if strings.TrimSpace(token) == "" {
			return nil, protocolError("%s is empty", challengeField)
		}
		return login.ChallengeOutcome{Token: token}, nil
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, protocolError("decode session: %v", err)
	}
	return login.SessionOutcome{Session: login.Session{
		Token:  sessionToken(values),
		Fields: values,
	}}, nil
}

func sessionToken(values map[string]any) string {
	if tokens, ok := values["tokens"].(map[string]any); ok {
		if access, ok := tokens["accessToken"].(string); ok {
			return access
		}
	}
	if token, ok := values["token"].(string); ok {
		return token
	}
	return ""
}

// errorMessage extracts a human-readable message from an error body. Both
// {"message": "..."} and the {"error": {"message": "..."}} envelope are
// understood, as well as {"error": "..."}.
func errorMessage(raw []byte) string {
	var body struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		return msg
	}
	if len(body.Error) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(body.Error, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var detail struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &detail); err == nil {
		return strings.TrimSpace(detail.Message)
	}
	return ""
}
