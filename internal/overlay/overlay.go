// Package overlay runs the overlay surface process. It mirrors the host's
// state over IPC and renders the latest advice as a desktop notification,
// optionally read aloud.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/dooshek/gamecoach/internal/ipc"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/notification"
	"github.com/dooshek/gamecoach/internal/syncclient"
	"github.com/dooshek/gamecoach/internal/types"
)

type Options struct {
	SocketPath string
	// URL dials a host served over TCP instead of SocketPath
	URL        string
	ID         string
	Bounds     types.Bounds
	Notifier   notification.Notifier
	Speakers   SpeakerFactory
}

// Run attaches to the host as the overlay with opts.ID and renders until
// the host asks it to close, the connection drops or ctx ends
func Run(ctx context.Context, opts Options) error {
	var (
		conn *ipc.Client
		err  error
	)
	if opts.URL != "" {
		conn, err = ipc.DialURL(ctx, opts.URL)
	} else {
		conn, err = ipc.Dial(ctx, opts.SocketPath)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to host: %w", err)
	}
	defer conn.Close()

	return serve(ctx, conn, opts)
}

func serve(ctx context.Context, conn *ipc.Client, opts Options) error {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notification.New()
	}
	renderer := NewRenderer(notifier, opts.Speakers)
	defer renderer.Close()

	closed := make(chan struct{})
	var closeOnce sync.Once
	conn.OnPush(func(msg ipc.Message) {
		switch msg.Op {
		case ipc.PushSurfaceRaise:
			renderer.Raise()
		case ipc.PushSurfaceBounds:
			var b types.Bounds
			if err := msg.Decode(&b); err != nil {
				logger.Warnf("Ignoring bounds push: %v", err)
				return
			}
			logger.Debugf("Overlay bounds now %dx%d at %d,%d", b.Width, b.Height, b.X, b.Y)
		case ipc.PushSurfaceClose:
			closeOnce.Do(func() { close(closed) })
		}
	})

	if err := conn.Attach(ctx, types.RoleOverlay, opts.ID); err != nil {
		return fmt.Errorf("failed to attach overlay: %w", err)
	}

	client := syncclient.New(conn)
	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to sync state: %w", err)
	}
	defer client.Close()

	unsubscribe := client.Subscribe(func(gs types.GlobalState) {
		renderer.Render(ctx, gs)
	})
	defer unsubscribe()
	renderer.Render(ctx, client.State())

	if err := conn.Ready(ctx); err != nil {
		return fmt.Errorf("failed to report ready: %w", err)
	}
	logger.Infof("Overlay %s ready", opts.ID)

	select {
	case <-closed:
		logger.Debug("Host closed the overlay")
	case <-conn.Done():
		logger.Debug("Host connection lost")
	case <-ctx.Done():
	}
	return nil
}
