package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"login-handshake/login"
)

func typeText(m *Model, text string) {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

func press(m *Model, k tea.KeyType) tea.Cmd {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	return cmd
}

// drain runs cmd and everything it batches, feeding the submission result
// back into the model.
func drain(t *testing.T, m *Model, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	if cmd == nil {
		return nil
	}
	var msgs []tea.Msg
	switch msg := cmd().(type) {
	case tea.BatchMsg:
		for _, c := range msg {
			msgs = append(msgs, drain(t, m, c)...)
		}
	case submittedMsg:
		msgs = append(msgs, msg)
		_, next := m.Update(msg)
		if next != nil {
			msgs = append(msgs, next())
		}
	default:
		msgs = append(msgs, msg)
	}
	return msgs
}

func fillAndSubmit(t *testing.T, m *Model, email, password string) []tea.Msg {
	t.Helper()
	typeText(m, email)
	press(m, tea.KeyTab)
	typeText(m, password)
	return drain(t, m, press(m, tea.KeyEnter))
}

func TestModel_Session(t *testing.T) {
	var got login.Payload
	gw := login.GatewayFunc(func(_ context.Context, strategy string, p login.Payload) (login.Outcome, error) {
		assert.Equal(t, login.StrategyPassword, strategy)
		got = p
		return login.SessionOutcome{}, nil
	})
	m := New(gw, zap.NewNop())

	msgs := fillAndSubmit(t, m, "a@b.com", "secret")
	assert.Equal(t, login.PasswordPayload(login.Credentials{Email: "a@b.com", Password: "secret"}), got)
	assert.Equal(t, "/", m.Redirect())
	assert.Contains(t, msgs, tea.Quit())
	assert.Contains(t, m.View(), "Signed in")
	assert.NotContains(t, m.View(), "secret")
}

func TestModel_EnterOnEmailMovesFocus(t *testing.T) {
	calls := 0
	gw := login.GatewayFunc(func(context.Context, string, login.Payload) (login.Outcome, error) {
		calls++
		return login.SessionOutcome{}, nil
	})
	m := New(gw, zap.NewNop())

	typeText(m, "a@b.com")
	press(m, tea.KeyEnter)
	assert.Equal(t, 1, m.focus)
	assert.Zero(t, calls)
}

func TestModel_FailureToastIsDismissible(t *testing.T) {
	gw := login.GatewayFunc(func(context.Context, string, login.Payload) (login.Outcome, error) {
		return nil, errors.New("Invalid credentials")
	})
	m := New(gw, zap.NewNop())

	fillAndSubmit(t, m, "a@b.com", "wrong")
	assert.Contains(t, m.View(), "Invalid credentials")
	assert.Equal(t, login.StateFailed, m.login.Snapshot().State)

	press(m, tea.KeyEsc)
	assert.NotContains(t, m.View(), "Invalid credentials")
	assert.Equal(t, "wrong", m.login.Snapshot().Values.Password, "the password survives a failure")
}

func TestModel_InvalidFormShowsFieldErrors(t *testing.T) {
	gw := login.GatewayFunc(func(context.Context, string, login.Payload) (login.Outcome, error) {
		t.Fatal("gateway must not be called")
		return nil, nil
	})
	m := New(gw, zap.NewNop())

	press(m, tea.KeyTab)
	drain(t, m, press(m, tea.KeyEnter))
	assert.Contains(t, m.View(), login.RequiredMessage)
}

func TestModel_SecondFactor(t *testing.T) {
	var strategies []string
	gw := login.GatewayFunc(func(_ context.Context, strategy string, p login.Payload) (login.Outcome, error) {
		strategies = append(strategies, strategy)
		if strategy == login.StrategyPassword {
			return login.ChallengeOutcome{Token: "tok"}, nil
		}
		assert.Equal(t, login.Payload{"mfaToken": "tok", "code": "123456"}, p)
		return login.SessionOutcome{}, nil
	})
	m := New(gw, zap.NewNop())

	fillAndSubmit(t, m, "a@b.com", "secret")
	require.True(t, m.inChallenge())
	assert.True(t, m.code.Focused())
	assert.Empty(t, m.password.Value(), "the password is dropped once a challenge is issued")
	assert.Contains(t, m.View(), "authenticator")

	typeText(m, "123456")
	msgs := drain(t, m, press(m, tea.KeyEnter))
	assert.Equal(t, []string{login.StrategyPassword, login.StrategyMFA}, strategies)
	assert.Equal(t, "/", m.Redirect())
	assert.Contains(t, msgs, tea.Quit())
}
