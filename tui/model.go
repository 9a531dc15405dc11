// Package tui is a terminal front end for the login handshake.
//
// The model never subscribes to the controllers: bubbletea owns the update
// loop, so View renders the controller snapshots directly and submissions
// run as commands that report back once the gateway has resolved.
package tui

import (
	"context"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"login-handshake/login"
	"login-handshake/mfa"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).MarginBottom(1)
	labelStyle   = lipgloss.NewStyle().Width(10)
	fieldErr     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	toastStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")).Padding(0, 1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// submittedMsg reports that a submission command has returned.
type submittedMsg struct {
	accepted bool
}

// Model is the bubbletea model of the login screen.
type Model struct {
	login *login.Controller
	mfa   *mfa.Controller

	email    textinput.Model
	password textinput.Model
	code     textinput.Model
	focus    int
	spinner  spinner.Model

	submitting bool
	nav        *navigation
}

// navigation records the path handed to the navigator. It is written from
// the submission command's goroutine.
type navigation struct {
	mu   sync.Mutex
	path string
}

func (n *navigation) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
}

func (n *navigation) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// New returns the login screen backed by gw.
func New(gw login.Gateway, logger *zap.Logger) *Model {
	nav := &navigation{}
	second := mfa.NewController(mfa.Config{Gateway: gw, Navigator: nav, Logger: logger})
	m := &Model{
		login: login.NewController(login.Config{
			Gateway:    gw,
			Navigator:  nav,
			Challenges: second,
			Logger:     logger,
		}),
		mfa: second,
		nav: nav,
	}

	m.email = textinput.New()
	m.email.Placeholder = "you@example.com"
	m.email.Focus()

	m.password = textinput.New()
	m.password.Placeholder = "password"
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'

	m.code = textinput.New()
	m.code.Placeholder = "123456"
	m.code.CharLimit = 8

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	return m
}

// Redirect is the path the user was sent to, empty until the login completes.
func (m *Model) Redirect() string {
	return m.nav.Path()
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case submittedMsg:
		m.submitting = false
		if m.Redirect() != "" {
			m.login.Close()
			m.mfa.Close()
			return m, tea.Quit
		}
		if m.mfa.Snapshot().Active() && !m.code.Focused() {
			m.password.SetValue("")
			m.email.Blur()
			m.password.Blur()
			return m, m.code.Focus()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.submitting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.login.Close()
		m.mfa.Close()
		return m, tea.Quit
	case "esc":
		if m.inChallenge() {
			m.mfa.DismissError()
		} else {
			m.login.DismissError()
		}
		return m, nil
	case "tab", "shift+tab", "up", "down":
		if !m.inChallenge() {
			return m, m.setFocus(1 - m.focus)
		}
		return m, nil
	case "enter":
		return m, m.submit()
	}

	var cmd tea.Cmd
	switch {
	case m.inChallenge():
		before := m.code.Value()
		m.code, cmd = m.code.Update(msg)
		if v := m.code.Value(); v != before {
			m.mfa.SetCode(v)
		}
	case m.focus == 0:
		before := m.email.Value()
		m.email, cmd = m.email.Update(msg)
		if v := m.email.Value(); v != before {
			m.login.SetField(login.FieldEmail, v)
		}
	default:
		before := m.password.Value()
		m.password, cmd = m.password.Update(msg)
		if v := m.password.Value(); v != before {
			m.login.SetField(login.FieldPassword, v)
		}
	}
	return m, cmd
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.focus = i
	if i == 0 {
		m.password.Blur()
		return m.email.Focus()
	}
	m.email.Blur()
	return m.password.Focus()
}

// submit starts the submission of the current step. Enter on the email
// field moves to the password instead.
func (m *Model) submit() tea.Cmd {
	if m.submitting {
		return nil
	}
	if !m.inChallenge() && m.focus == 0 {
		return m.setFocus(1)
	}

	run := m.login.Submit
	if m.inChallenge() {
		run = m.mfa.Submit
	}
	m.submitting = true
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		return submittedMsg{accepted: run(context.Background())}
	})
}

func (m *Model) inChallenge() bool {
	return m.mfa.Snapshot().Active()
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sign in"))
	b.WriteString("\n")

	if path := m.Redirect(); path != "" {
		b.WriteString(successStyle.Render("Signed in, continuing to " + path))
		b.WriteString("\n")
		return b.String()
	}

	var (
		message string
		busy    bool
	)
	if m.inChallenge() {
		snap := m.mfa.Snapshot()
		b.WriteString("Enter the code from your authenticator app.\n\n")
		b.WriteString(row("Code", m.code.View(), snap.CodeError))
		message, busy = snap.ErrorMessage, snap.SubmitDisabled()
	} else {
		snap := m.login.Snapshot()
		b.WriteString(row("Email", m.email.View(), snap.FieldError(login.FieldEmail)))
		b.WriteString(row("Password", m.password.View(), snap.FieldError(login.FieldPassword)))
		message, busy = snap.ErrorMessage, snap.SubmitDisabled()
	}

	if busy || m.submitting {
		b.WriteString("\n" + m.spinner.View() + " Signing in...\n")
	}
	if message != "" {
		b.WriteString("\n" + toastStyle.Render(message) + "\n")
	}
	b.WriteString(helpStyle.Render("enter submit • tab switch field • esc dismiss • ctrl+c quit"))
	b.WriteString("\n")
	return b.String()
}

func row(label, input, err string) string {
	line := labelStyle.Render(label) + input
	if err != "" {
		line += " " + fieldErr.Render(err)
	}
	return line + "\n"
}
