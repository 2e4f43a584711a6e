package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/visitorpulse/pulse/internal/client"
	"github.com/visitorpulse/pulse/internal/logging"
	"github.com/visitorpulse/pulse/internal/tui"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:3001/ws", "WebSocket URL of the Pulse hub")
	logPath := flag.String("log", "", "Write debug logs to this file (the screen belongs to the TUI)")
	flag.Parse()

	logger := zap.NewNop()
	if *logPath != "" {
		l, err := logging.New(logging.Config{Level: "debug", OutputPaths: []string{*logPath}})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	defer func() { _ = logger.Sync() }()

	updates := make(chan struct{}, 1)
	mgr := client.NewManager(*wsURL, client.Options{
		Logger: logger,
		OnUpdate: func(client.Update) {
			select {
			case updates <- struct{}{}:
			default:
			}
		},
	})
	defer mgr.Close()

	p := tea.NewProgram(tui.New(mgr, updates), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
