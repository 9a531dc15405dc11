// Package mfa implements the second step of the login handshake: entering
// the one-time code for a challenge issued by the authentication service.
package mfa

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"login-handshake/login"
)

// ErrAdditionalChallenge is the failure reported when the service answers a
// code with yet another challenge.
var ErrAdditionalChallenge = errors.New("additional verification required")

// CodeRequiredMessage is the validation message of an empty code.
const CodeRequiredMessage = "Required"

// Config wires a Controller to its collaborators.
type Config struct {
	Gateway   login.Gateway
	Navigator login.Navigator
	Logger    *zap.Logger
}

// Snapshot is the state of the second-factor step.
type Snapshot struct {
	Token        string
	Code         string
	CodeError    string
	Touched      bool
	State        login.State
	ErrorMessage string
}

// Active reports whether a challenge has been handed over.
func (s Snapshot) Active() bool {
	return s.Token != ""
}

// SubmitDisabled reports whether the submit action should be disabled.
func (s Snapshot) SubmitDisabled() bool {
	return s.State == login.StateSubmitting
}

// Controller collects the code for a challenge token and exchanges it for a
// session. It implements login.ChallengeHandler.
type Controller struct {
	gateway   login.Gateway
	navigator login.Navigator
	logger    *zap.Logger

	emitMu sync.Mutex

	mu        sync.Mutex
	token     string
	code      string
	touched   bool
	state     login.State
	message   string
	closed    bool
	nextID    int
	listeners []listener
}

type listener struct {
	id int
	fn func(Snapshot)
}

var _ login.ChallengeHandler = (*Controller)(nil)

func NewController(cfg Config) *Controller {
	if cfg.Gateway == nil {
		panic("mfa: gateway is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		gateway:   cfg.Gateway,
		navigator: cfg.Navigator,
		logger:    logger.Named("mfa"),
		state:     login.StateIdle,
	}
}

// BeginChallenge starts a fresh code entry for token.
func (c *Controller) BeginChallenge(token string) {
	c.update(func() bool {
		c.token = token
		c.code = ""
		c.touched = false
		c.state = login.StateIdle
		c.message = ""
		return true
	})
}

// Subscribe registers fn for every state change. fn must not call mutating
// methods of the controller. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.listeners = slices.DeleteFunc(c.listeners, func(l listener) bool { return l.id == id })
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SetCode updates the code. Editing after a failure makes the step idle.
func (c *Controller) SetCode(value string) {
	c.update(func() bool {
		c.code = value
		c.touched = true
		if c.state == login.StateFailed {
			c.state = login.StateIdle
		}
		return true
	})
}

func (c *Controller) DismissError() {
	c.update(func() bool {
		if c.message == "" {
			return false
		}
		c.message = ""
		return true
	})
}

// Submit exchanges the code for a session and blocks until the gateway
// resolves. It returns false when no gateway call was made.
func (c *Controller) Submit(ctx context.Context) bool {
	var (
		token, code string
		accepted    bool
	)
	c.update(func() bool {
		if c.token == "" || !c.state.Submittable() {
			return false
		}
		if validateCode(c.code) != "" {
			c.touched = true
			return true
		}
		token, code = c.token, strings.TrimSpace(c.code)
		c.state = login.StateSubmitting
		c.message = ""
		accepted = true
		return true
	})
	if !accepted {
		return false
	}

	outcome, err := c.gateway.Login(ctx, login.StrategyMFA, login.Payload{
		"mfaToken": token,
		"code":     code,
	})
	var action login.Action
	if err == nil {
		action, err = login.Route(outcome)
	}
	if _, again := action.(login.ShowChallenge); again {
		err = ErrAdditionalChallenge
	}

	live := false
	c.update(func() bool {
		live = true
		if err != nil {
			c.state = login.StateFailed
			c.message = failureMessage(err)
			return true
		}
		c.state = login.StateCompleted
		c.code = ""
		return true
	})
	if !live {
		c.logger.Debug("discarding second factor result after close")
		return true
	}
	if err != nil {
		c.logger.Info("second factor failed", zap.Error(err))
		return true
	}
	nav := action.(login.NavigateTo)
	c.logger.Info("second factor accepted", zap.String("path", nav.Path))
	if c.navigator != nil {
		c.navigator.Navigate(nav.Path)
	}
	return true
}

// Close tears the controller down; later results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.listeners = nil
}

func (c *Controller) update(fn func() bool) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed || !fn() {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Token:        c.token,
		Code:         c.code,
		Touched:      c.touched,
		State:        c.state,
		ErrorMessage: c.message,
	}
	if c.touched {
		snap.CodeError = validateCode(c.code)
	}
	return snap
}

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return login.GenericFailureMessage
}

func validateCode(code string) string {
	if strings.TrimSpace(code) == "" {
		return CodeRequiredMessage
	}
	return ""
}
