// Package panel is the terminal control panel. It attaches to the host as
// the primary surface.
package panel

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dooshek/gamecoach/internal/ipc"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/syncclient"
	"github.com/dooshek/gamecoach/internal/types"
)

// Run connects to the host on socketPath and runs the panel until the
// user quits or the host goes away
func Run(ctx context.Context, socketPath string) error {
	conn, err := ipc.Dial(ctx, socketPath)
	if err != nil {
		return fmt.Errorf("failed to connect to host (is `gamecoach run` running?): %w", err)
	}
	defer conn.Close()

	if err := conn.Attach(ctx, types.RolePrimary, ""); err != nil {
		return fmt.Errorf("failed to attach panel: %w", err)
	}

	client := syncclient.New(conn)
	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to sync state: %w", err)
	}
	defer client.Close()

	program := tea.NewProgram(New(conn, client.State()), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := client.Subscribe(func(gs types.GlobalState) {
		program.Send(stateMsg(gs))
	})
	defer unsubscribe()

	go func() {
		select {
		case <-conn.Done():
			program.Send(disconnectedMsg{})
		case <-ctx.Done():
		}
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("panel failed: %w", err)
	}
	logger.Debug("Panel closed")
	return nil
}
