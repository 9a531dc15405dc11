package delivery

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"login-handshake/login"
	"login-handshake/mfa"
)

// loginFlow pairs the controllers of one login attempt with the place the
// user was sent once it completed.
type loginFlow struct {
	id    string
	login *login.Controller
	mfa   *mfa.Controller

	mu         sync.Mutex
	redirectTo string
	lastSeen   time.Time
}

func newLoginFlow(gw login.Gateway, logger *zap.Logger) *loginFlow {
	f := &loginFlow{id: uuid.NewString()}
	logger = logger.With(zap.String("flow_id", f.id))
	nav := login.NavigatorFunc(f.navigate)

	f.mfa = mfa.NewController(mfa.Config{
		Gateway:   gw,
		Navigator: nav,
		Logger:    logger,
	})
	f.login = login.NewController(login.Config{
		Gateway:    gw,
		Navigator:  nav,
		Challenges: f.mfa,
		Logger:     logger,
	})
	return f
}

func (f *loginFlow) navigate(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirectTo = path
}

func (f *loginFlow) redirect() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.redirectTo
}

func (f *loginFlow) close() {
	f.login.Close()
	f.mfa.Close()
}

// flowRegistry keeps the live flows. Flows idle for longer than ttl are
// closed and dropped whenever the registry is used.
type flowRegistry struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	flows map[string]*loginFlow
}

func newFlowRegistry(ttl time.Duration) *flowRegistry {
	return &flowRegistry{
		ttl:   ttl,
		now:   time.Now,
		flows: map[string]*loginFlow{},
	}
}

func (r *flowRegistry) add(f *loginFlow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	f.lastSeen = now
	r.flows[f.id] = f
}

func (r *flowRegistry) get(id string) (*loginFlow, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweepLocked(now)
	f, ok := r.flows[id]
	if ok {
		f.lastSeen = now
	}
	return f, ok
}

func (r *flowRegistry) remove(id string) bool {
	r.mu.Lock()
	f, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()
	if ok {
		f.close()
	}
	return ok
}

func (r *flowRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

func (r *flowRegistry) sweepLocked(now time.Time) {
	if r.ttl <= 0 {
		return
	}
	for id, f := range r.flows {
		if now.Sub(f.lastSeen) >= r.ttl {
			delete(r.flows, id)
			f.close()
		}
	}
}
