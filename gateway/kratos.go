package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	ory "github.com/ory/client-go"
	"go.uber.org/zap"

	"login-handshake/login"
)

const (
	kratosMethodPassword = "password"
	kratosMethodTOTP     = "totp"
	kratosAAL2           = "aal2"

	// errIDAAL2Required is the Kratos error id returned by whoami when the
	// identity has a second factor that the session has not satisfied yet.
	errIDAAL2Required = "session_aal2_required"
)

// KratosConfig configures a Kratos adapter.
type KratosConfig struct {
	// PublicURL is the Kratos public API, e.g. http://127.0.0.1:4433.
	PublicURL  string
	HTTPClient *http.Client
	// TokenizeAs names a session tokenizer template; when set the session
	// token handed back is the tokenized JWT.
	TokenizeAs string
	Verifier   TokenVerifier
	Logger     *zap.Logger
}

// Kratos runs the handshake against Ory Kratos native login flows. The
// password strategy uses the password method; a session that still needs
// aal2 is reported as a challenge carrying the session token, which the mfa
// strategy then upgrades with the totp method.
type Kratos struct {
	client     *ory.APIClient
	tokenizeAs string
	verifier   TokenVerifier
	logger     *zap.Logger
}

var _ login.Gateway = (*Kratos)(nil)

func NewKratos(cfg KratosConfig) (*Kratos, error) {
	publicURL := strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	if publicURL == "" {
		return nil, errors.New("gateway: kratos public URL is required")
	}
	conf := ory.NewConfiguration()
	conf.Servers = ory.ServerConfigurations{
		{
			URL: publicURL,
		},
	}
	if cfg.HTTPClient != nil {
		conf.HTTPClient = cfg.HTTPClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kratos{
		client:     ory.NewAPIClient(conf),
		tokenizeAs: cfg.TokenizeAs,
		verifier:   cfg.Verifier,
		logger:     logger.Named("kratos"),
	}, nil
}

func (k *Kratos) Login(ctx context.Context, strategy string, payload login.Payload) (login.Outcome, error) {
	switch strategy {
	case login.StrategyPassword:
		email, password, ok := passwordFields(payload)
		if !ok {
			return nil, protocolError("password payload lacks user.email or password")
		}
		return k.loginWithPassword(ctx, email, password)
	case login.StrategyMFA:
		token, _ := payload["mfaToken"].(string)
		code, _ := payload["code"].(string)
		if token == "" {
			return nil, protocolError("mfa payload lacks mfaToken")
		}
		return k.loginWithTOTP(ctx, token, code)
	default:
		return nil, &Error{
			Message: "unsupported login method",
			Err:     fmt.Errorf("%w: strategy %q", ErrProtocol, strategy),
		}
	}
}

func (k *Kratos) loginWithPassword(ctx context.Context, email, password string) (login.Outcome, error) {
	flow, resp, err := k.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, k.failure("create login flow", err, resp)
	}

	updateBody := ory.UpdateLoginFlowWithPasswordMethod{
		Method:     kratosMethodPassword,
		Identifier: email,
		Password:   password,
	}
	result, resp, err := k.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(ory.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&updateBody)).
		Execute()
	if err != nil {
		return nil, k.failure("submit password", err, resp)
	}

	token := result.GetSessionToken()
	if token == "" {
		return nil, protocolError("kratos login succeeded without a session token")
	}

	session, resp, err := k.whoami(ctx, token)
	if err != nil {
		if aal2Required(err) {
			k.logger.Info("session requires a second factor", zap.String("flow_id", flow.Id))
			return login.ChallengeOutcome{Token: token}, nil
		}
		return nil, k.failure("load session", err, resp)
	}
	return k.sessionOutcome(ctx, token, session)
}

func (k *Kratos) loginWithTOTP(ctx context.Context, token, code string) (login.Outcome, error) {
	flow, resp, err := k.client.FrontendAPI.CreateNativeLoginFlow(ctx).
		Aal(kratosAAL2).
		XSessionToken(token).
		Execute()
	if err != nil {
		return nil, k.failure("create aal2 flow", err, resp)
	}

	updateBody := ory.UpdateLoginFlowWithTotpMethod{
		Method:   kratosMethodTOTP,
		TotpCode: code,
	}
	result, resp, err := k.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.Id).
		XSessionToken(token).
		UpdateLoginFlowBody(ory.UpdateLoginFlowWithTotpMethodAsUpdateLoginFlowBody(&updateBody)).
		Execute()
	if err != nil {
		return nil, k.failure("submit totp", err, resp)
	}

	if upgraded := result.GetSessionToken(); upgraded != "" {
		token = upgraded
	}
	session, resp, err := k.whoami(ctx, token)
	if err != nil {
		return nil, k.failure("load session", err, resp)
	}
	return k.sessionOutcome(ctx, token, session)
}

func (k *Kratos) whoami(ctx context.Context, token string) (*ory.Session, *http.Response, error) {
	req := k.client.FrontendAPI.ToSession(ctx).XSessionToken(token)
	if k.tokenizeAs != "" {
		req = req.TokenizeAs(k.tokenizeAs)
	}
	return req.Execute()
}

func (k *Kratos) sessionOutcome(ctx context.Context, token string, session *ory.Session) (login.Outcome, error) {
	if session == nil {
		return nil, protocolError("kratos returned no session")
	}
	if k.tokenizeAs != "" {
		if !session.HasTokenized() {
			return nil, protocolError("kratos did not return a tokenized session")
		}
		token = session.GetTokenized()
	}
	if k.verifier != nil {
		if err := k.verifier.Verify(ctx, token); err != nil {
			k.logger.Warn("session token rejected", zap.Error(err))
			return nil, &Error{Message: MessageUnverified, Err: fmt.Errorf("%w: %v", ErrUnverified, err)}
		}
	}

	fields := map[string]any{
		"id":  session.Id,
		"aal": string(session.GetAuthenticatorAssuranceLevel()),
	}
	if session.Identity != nil {
		fields["identity_id"] = session.Identity.Id
	}
	return login.SessionOutcome{Session: login.Session{Token: token, Fields: fields}}, nil
}

// failure normalises an SDK error. Kratos explains a rejected submission in
// the UI messages of the returned flow or in a generic error body.
func (k *Kratos) failure(op string, err error, resp *http.Response) *Error {
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if status == http.StatusGone {
		return &Error{Message: MessageExpired, Status: status, Err: fmt.Errorf("%w: %s: %v", ErrRejected, op, err)}
	}

	var genericError *ory.GenericOpenAPIError
	if !errors.As(err, &genericError) {
		k.logger.Warn("kratos request failed", zap.String("op", op), zap.Error(err))
		return transportError(err)
	}
	if status >= 200 && status <= 299 {
		return protocolError("%s: %v", op, err)
	}

	k.logger.Info("kratos rejected request", zap.String("op", op), zap.Int("status", status))
	return rejectedError(status, modelMessage(genericError.Model()))
}

func aal2Required(err error) bool {
	var genericError *ory.GenericOpenAPIError
	if !errors.As(err, &genericError) {
		return false
	}
	switch m := genericError.Model().(type) {
	case ory.ErrorGeneric:
		return errorID(m.Error) == errIDAAL2Required
	case *ory.ErrorGeneric:
		return m != nil && errorID(m.Error) == errIDAAL2Required
	default:
		return false
	}
}

// errorID returns the Kratos error id. The SDK has no field for it and keeps
// it among the additional properties.
func errorID(content ory.GenericErrorContent) string {
	id, _ := content.AdditionalProperties["id"].(string)
	return id
}

func modelMessage(model interface{}) string {
	switch m := model.(type) {
	case ory.LoginFlow:
		return uiMessage(m.Ui)
	case *ory.LoginFlow:
		if m != nil {
			return uiMessage(m.Ui)
		}
	case ory.ErrorGeneric:
		return m.Error.GetMessage()
	case *ory.ErrorGeneric:
		if m != nil {
			return m.Error.GetMessage()
		}
	}
	return ""
}

func uiMessage(ui ory.UiContainer) string {
	for _, msg := range ui.Messages {
		if msg.Text != "" {
			return msg.Text
		}
	}
	for _, node := range ui.Nodes {
		for _, msg := range node.Messages {
			if msg.Text != "" {
				return msg.Text
			}
		}
	}
	return ""
}

func passwordFields(payload login.Payload) (email, password string, ok bool) {
	user, _ := payload["user"].(map[string]any)
	email, _ = user["email"].(string)
	password, _ = payload["password"].(string)
	return email, password, email != "" && password != ""
}
