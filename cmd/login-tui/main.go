// Command login-tui signs in against the configured authentication service
// from the terminal.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"login-handshake/app"
	"login-handshake/tui"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// The terminal is busy drawing the form, so logs only go to a file.
	logger := zap.NewNop()
	if out := cfg.Log.Output; out != "" && out != "stderr" && out != "stdout" {
		if logger, err = app.NewLogger(cfg.Log); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
			os.Exit(1)
		}
	}
	defer func() { _ = logger.Sync() }()

	gw, err := app.NewGateway(context.Background(), cfg.Gateway, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure gateway: %v\n", err)
		os.Exit(1)
	}

	model := tui.New(gw, logger)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running login: %v\n", err)
		os.Exit(1)
	}

	if path := model.Redirect(); path != "" {
		fmt.Printf("Signed in, continue at %s\n", path)
		return
	}
	fmt.Println("Login cancelled.")
}
