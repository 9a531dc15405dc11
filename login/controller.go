package login

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Config wires a Controller to its collaborators.
type Config struct {
	// Gateway performs the credential exchange. Required.
	Gateway Gateway
	// Navigator is told where to go once the login completes.
	Navigator Navigator
	// Challenges receives the token when a second factor is required.
	Challenges ChallengeHandler
	Logger     *zap.Logger
}

// Snapshot is the state of a Controller as seen by the presentation layer.
type Snapshot struct {
	Values         Credentials
	Errors         ValidationErrors
	Touched        map[Field]bool
	State          State
	ErrorMessage   string
	ChallengeToken string
}

// SubmitDisabled reports whether the submit action should be disabled.
func (s Snapshot) SubmitDisabled() bool {
	return s.State == StateSubmitting
}

// FieldError returns the error of name once the field has been touched.
func (s Snapshot) FieldError(name Field) string {
	if !s.Touched[name] {
		return ""
	}
	return s.Errors[name]
}

// Controller owns the values, validation and submission state of one login
// attempt. Its methods are safe to call from multiple goroutines; state
// changes are delivered to subscribers in order.
type Controller struct {
	gateway    Gateway
	navigator  Navigator
	challenges ChallengeHandler
	logger     *zap.Logger

	// emitMu serialises mutations with the notification that follows them.
	emitMu sync.Mutex

	mu        sync.Mutex
	values    Credentials
	touched   map[Field]bool
	errors    ValidationErrors
	state     State
	message   string
	token     string
	closed    bool
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewController returns a controller in the Idle state.
func NewController(cfg Config) *Controller {
	if cfg.Gateway == nil {
		panic("login: gateway is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		gateway:    cfg.Gateway,
		navigator:  cfg.Navigator,
		challenges: cfg.Challenges,
		logger:     logger.Named("login"),
		touched:    map[Field]bool{},
		errors:     Validate(Credentials{}),
		state:      StateIdle,
		listeners:  map[int]func(Snapshot){},
	}
}

// Subscribe registers fn to receive every state change. fn must not call
// mutating methods of the controller. The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SetField updates one credential, marks it touched and revalidates. Editing
// after a failure makes the form idle again.
func (c *Controller) SetField(name Field, value string) {
	c.update(func() bool {
		switch name {
		case FieldEmail:
			c.values.Email = value
		case FieldPassword:
			c.values.Password = value
		default:
			c.logger.Debug("ignoring unknown field", zap.String("field", string(name)))
			return false
		}
		c.touched[name] = true
		c.errors = Validate(c.values)
		if c.state == StateFailed {
			c.state = StateIdle
		}
		return true
	})
}

// DismissError hides the error message. State and values are kept.
func (c *Controller) DismissError() {
	c.update(func() bool {
		if c.message == "" {
			return false
		}
		c.message = ""
		return true
	})
}

// Submit runs one login attempt and blocks until the gateway resolves. It
// returns false without contacting the gateway when the form is invalid,
// an attempt is already in flight, the login has moved past the password
// step or the controller is closed.
func (c *Controller) Submit(ctx context.Context) bool {
	var (
		creds    Credentials
		accepted bool
	)
	c.update(func() bool {
		if !c.state.Submittable() {
			return false
		}
		c.errors = Validate(c.values)
		if !c.errors.Valid() {
			for _, f := range Fields {
				c.touched[f] = true
			}
			return true
		}
		creds = c.values
		c.state = StateSubmitting
		c.message = ""
		accepted = true
		return true
	})
	if !accepted {
		return false
	}

	c.logger.Debug("submitting credentials", zap.String("strategy", StrategyPassword))
	outcome, err := c.gateway.Login(ctx, StrategyPassword, PasswordPayload(creds))
	c.resolve(outcome, err)
	return true
}

func (c *Controller) resolve(outcome Outcome, err error) {
	var action Action
	if err == nil {
		action, err = Route(outcome)
	}

	live := false
	c.update(func() bool {
		live = true
		if err != nil {
			c.state = StateFailed
			c.message = failureMessage(err)
			return true
		}
		switch a := action.(type) {
		case ShowChallenge:
			c.state = StateChallengeIssued
			c.token = a.Token
			c.values.Password = ""
		case NavigateTo:
			c.state = StateCompleted
		}
		return true
	})
	if !live {
		c.logger.Debug("discarding login result after close", zap.Error(err))
		return
	}

	switch a := action.(type) {
	case ShowChallenge:
		c.logger.Info("second factor required")
		if c.challenges != nil {
			c.challenges.BeginChallenge(a.Token)
		}
	case NavigateTo:
		c.logger.Info("login completed", zap.String("path", a.Path))
		if c.navigator != nil {
			c.navigator.Navigate(a.Path)
		}
	default:
		c.logger.Info("login failed", zap.Error(err))
	}
}

// Close tears the controller down. Later calls are no-ops and results
// arriving afterwards are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.listeners = map[int]func(Snapshot){}
}

func (c *Controller) update(fn func() bool) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	changed := fn()
	if !changed {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if l, ok := c.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	touched := make(map[Field]bool, len(c.touched))
	for k, v := range c.touched {
		touched[k] = v
	}
	return Snapshot{
		Values:         c.values,
		Errors:         c.errors.clone(),
		Touched:        touched,
		State:          c.state,
		ErrorMessage:   c.message,
		ChallengeToken: c.token,
	}
}

// GenericFailureMessage is shown when a failure carries no message.
const GenericFailureMessage = "Login failed"

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return GenericFailureMessage
}
