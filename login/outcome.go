package login

import "context"

// Strategy names used by the login handshake.
const (
	StrategyPassword = "password"
	StrategyMFA      = "mfa"
)

// Payload is the strategy-specific body forwarded to the authentication
// service.
type Payload map[string]any

// PasswordPayload builds the payload of the password strategy.
func PasswordPayload(c Credentials) Payload {
	return Payload{
		"user": map[string]any{
			"email": c.Email,
		},
		"password": c.Password,
	}
}

// Session is a completed login. Its content beyond "not a challenge" is not
// interpreted by the handshake.
type Session struct {
	// Token is the bearer credential issued with the session, if any.
	Token string
	// Fields holds the decoded response body.
	Fields map[string]any
}

// Outcome is the result of a successful gateway call: either a
// SessionOutcome or a ChallengeOutcome.
type Outcome interface {
	isOutcome()
}

// SessionOutcome reports that authentication is complete.
type SessionOutcome struct {
	Session Session
}

// ChallengeOutcome reports that a second factor is required.
type ChallengeOutcome struct {
	Token string
}

func (SessionOutcome) isOutcome()   {}
func (ChallengeOutcome) isOutcome() {}

// Gateway performs one exchange with the authentication service. It returns
// exactly one of an Outcome or an error whose message is fit for display.
// Implementations must not retry, cache or deduplicate calls.
type Gateway interface {
	Login(ctx context.Context, strategy string, payload Payload) (Outcome, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, strategy string, payload Payload) (Outcome, error)

func (f GatewayFunc) Login(ctx context.Context, strategy string, payload Payload) (Outcome, error) {
	return f(ctx, strategy, payload)
}

// Navigator moves the user to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// ChallengeHandler receives the token of an issued challenge and takes over
// the second authentication step.
type ChallengeHandler interface {
	BeginChallenge(token string)
}

// ChallengeHandlerFunc adapts a function to ChallengeHandler.
type ChallengeHandlerFunc func(token string)

func (f ChallengeHandlerFunc) BeginChallenge(token string) { f(token) }
