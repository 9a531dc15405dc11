package mfa

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"login-handshake/login"
)

type scripted struct {
	outcome  login.Outcome
	err      error
	strategy string
	payload  login.Payload
	calls    int
}

func (s *scripted) Login(_ context.Context, strategy string, payload login.Payload) (login.Outcome, error) {
	s.calls++
	s.strategy = strategy
	s.payload = payload
	return s.outcome, s.err
}

func TestController_WithoutChallengeDoesNothing(t *testing.T) {
	gw := &scripted{outcome: login.SessionOutcome{}}
	ctrl := NewController(Config{Gateway: gw})
	ctrl.SetCode("123456")

	assert.False(t, ctrl.Submit(context.Background()))
	assert.Zero(t, gw.calls)
	assert.False(t, ctrl.Snapshot().Active())
}

func TestController_EmptyCodeIsRejectedLocally(t *testing.T) {
	gw := &scripted{outcome: login.SessionOutcome{}}
	ctrl := NewController(Config{Gateway: gw})
	ctrl.BeginChallenge("t1")

	assert.False(t, ctrl.Submit(context.Background()))
	assert.Zero(t, gw.calls)
	assert.Equal(t, CodeRequiredMessage, ctrl.Snapshot().CodeError)
}

func TestController_CodeCompletesLogin(t *testing.T) {
	gw := &scripted{outcome: login.SessionOutcome{}}
	var paths []string
	ctrl := NewController(Config{
		Gateway:   gw,
		Navigator: login.NavigatorFunc(func(p string) { paths = append(paths, p) }),
	})
	var states []login.State
	ctrl.Subscribe(func(s Snapshot) { states = append(states, s.State) })

	ctrl.BeginChallenge("t1")
	ctrl.SetCode(" 123456 ")
	require.True(t, ctrl.Submit(context.Background()))

	assert.Equal(t, login.StrategyMFA, gw.strategy)
	assert.Equal(t, login.Payload{"mfaToken": "t1", "code": "123456"}, gw.payload)
	assert.Equal(t, []string{"/"}, paths)
	assert.Equal(t, login.StateCompleted, ctrl.Snapshot().State)
	assert.Equal(t, []login.State{login.StateIdle, login.StateIdle, login.StateSubmitting, login.StateCompleted}, states)
}

func TestController_FailureKeepsTokenForRetry(t *testing.T) {
	gw := &scripted{err: errors.New("Invalid code")}
	ctrl := NewController(Config{Gateway: gw})
	ctrl.BeginChallenge("t1")
	ctrl.SetCode("000000")

	require.True(t, ctrl.Submit(context.Background()))
	snap := ctrl.Snapshot()
	assert.Equal(t, login.StateFailed, snap.State)
	assert.Equal(t, "Invalid code", snap.ErrorMessage)
	assert.Equal(t, "t1", snap.Token)

	ctrl.DismissError()
	assert.Empty(t, ctrl.Snapshot().ErrorMessage)

	gw.err = nil
	gw.outcome = login.SessionOutcome{}
	require.True(t, ctrl.Submit(context.Background()))
	assert.Equal(t, 2, gw.calls)
	assert.Equal(t, login.StateCompleted, ctrl.Snapshot().State)
}

func TestController_SecondChallengeIsAFailure(t *testing.T) {
	gw := &scripted{outcome: login.ChallengeOutcome{Token: "t2"}}
	ctrl := NewController(Config{Gateway: gw})
	ctrl.BeginChallenge("t1")
	ctrl.SetCode("123456")

	ctrl.Submit(context.Background())
	snap := ctrl.Snapshot()
	assert.Equal(t, login.StateFailed, snap.State)
	assert.Equal(t, ErrAdditionalChallenge.Error(), snap.ErrorMessage)
}

func TestController_HandsOffFromLoginController(t *testing.T) {
	gw := login.GatewayFunc(func(_ context.Context, strategy string, _ login.Payload) (login.Outcome, error) {
		if strategy == login.StrategyPassword {
			return login.ChallengeOutcome{Token: "t1"}, nil
		}
		return login.SessionOutcome{}, nil
	})
	var paths []string
	nav := login.NavigatorFunc(func(p string) { paths = append(paths, p) })
	second := NewController(Config{Gateway: gw, Navigator: nav})
	first := login.NewController(login.Config{Gateway: gw, Navigator: nav, Challenges: second})

	first.SetField(login.FieldEmail, "a@b.com")
	first.SetField(login.FieldPassword, "secret")
	require.True(t, first.Submit(context.Background()))
	assert.Empty(t, paths)
	assert.Equal(t, "t1", second.Snapshot().Token)

	second.SetCode("123456")
	require.True(t, second.Submit(context.Background()))
	assert.Equal(t, []string{"/"}, paths)
}

type blankError struct{}

func (blankError) Error() string { return "" }

func TestController_BlankFailureGetsGenericMessage(t *testing.T) {
	gw := &scripted{err: blankError{}}
	ctrl := NewController(Config{Gateway: gw})
	ctrl.BeginChallenge("t1")
	ctrl.SetCode("123456")

	require.True(t, ctrl.Submit(context.Background()))
	snap := ctrl.Snapshot()
	assert.Equal(t, login.StateFailed, snap.State)
	assert.Equal(t, login.GenericFailureMessage, snap.ErrorMessage)
}

func TestController_Unsubscribe(t *testing.T) {
	ctrl := NewController(Config{Gateway: &scripted{}})
	var first, second int
	stop := ctrl.Subscribe(func(Snapshot) { first++ })
	ctrl.Subscribe(func(Snapshot) { second++ })

	ctrl.SetCode("1")
	stop()
	ctrl.SetCode("12")
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}
