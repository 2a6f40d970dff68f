package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dooshek/gamecoach/internal/capture"
	"github.com/dooshek/gamecoach/internal/config"
	"github.com/dooshek/gamecoach/internal/dbus"
	"github.com/dooshek/gamecoach/internal/detect"
	"github.com/dooshek/gamecoach/internal/fileops"
	"github.com/dooshek/gamecoach/internal/ipc"
	"github.com/dooshek/gamecoach/internal/keyboard"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/notification"
	"github.com/dooshek/gamecoach/internal/orchestrator"
	"github.com/dooshek/gamecoach/internal/state"
	"github.com/dooshek/gamecoach/internal/stats"
	"github.com/dooshek/gamecoach/internal/surface"
	"github.com/dooshek/gamecoach/internal/syncclient"
	"github.com/dooshek/gamecoach/internal/templates"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/dooshek/gamecoach/internal/windowdetect"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func runHost(args []string) error {
	fs, common := newFlagSet("run")
	noHotkey := fs.Bool("no-hotkey", false, "Do not listen for the analysis hotkey")
	noDBus := fs.Bool("no-dbus", false, "Do not export the D-Bus control API")
	fs.Parse(args)
	common.setupLogging("host", "")

	files := mustFileOps()

	if err := files.CheckPID(); err != nil {
		if errors.Is(err, fileops.ErrProcessAlreadyRunning) {
			logger.Error("Another instance of gamecoach is already running", err)
			return err
		}
		logger.Warnf("Ignoring unreadable PID file: %v", err)
	}
	if err := files.SavePID(); err != nil {
		return fmt.Errorf("failed to save PID file: %w", err)
	}
	defer func() {
		if err := files.CleanupPID(); err != nil {
			logger.Error("Failed to cleanup PID file", err)
		}
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage := config.NewFileStorage(files)
	store := state.New(storage)
	// Surfaces may attach before this lands; the merge arrives as one broadcast
	loaded := store.LoadPersisted(sigCtx)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate gamecoach binary: %w", err)
	}
	server := ipc.NewServer(store, ipc.ExecLauncher{
		Executable: exe,
		SocketPath: files.GetSocketPath(),
		LogFile:    *common.logFilename,
	})

	screen := capture.NewProvider(capture.RobotgoScreen{})
	manager := surface.NewManager(store, server, screen)

	client := syncclient.New(syncclient.NewLocalBackend(store, manager))
	if err := client.Initialize(sigCtx); err != nil {
		return fmt.Errorf("failed to mirror host state: %w", err)
	}
	defer client.Close()

	statsManager := stats.NewStatsManager(files)
	coach := orchestrator.New(client, screen, templates.NewCatalog(), orchestrator.WithRecorder(statsManager))

	server.SetOverlayController(manager)
	server.SetAnalysisController(coach)
	server.SetSourceLister(screen)

	var detector *detect.Detector
	if windows, err := windowdetect.New(); err != nil {
		logger.Warnf("Game detection disabled: %v", err)
	} else {
		detector = detect.New(windows, client)
	}

	watcher, err := config.NewWatcher(files.GetSettingsPath(), storage, func(patch types.SettingsPatch) {
		if err := store.ApplyPersisted(patch); err != nil {
			logger.Warnf("Ignoring invalid settings file: %v", err)
		}
	})
	if err != nil {
		logger.Warnf("Settings file watching disabled: %v", err)
	}

	if !*noDBus {
		var last dbus.GameDetector
		if detector != nil {
			last = detector
		}
		bus := dbus.NewServer(store, coach, manager, statsManager, last)
		if err := bus.Start(); err != nil {
			logger.Warnf("D-Bus control API disabled: %v", err)
		} else {
			defer bus.Stop()
		}
	}

	hostCtx, cancelHost := context.WithCancel(context.Background())
	defer cancelHost()
	g, ctx := errgroup.WithContext(hostCtx)

	g.Go(func() error {
		return server.ListenAndServe(ctx, files.GetSocketPath())
	})
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		return coach.Run(ctx)
	})
	if detector != nil {
		g.Go(func() error {
			return detector.Run(ctx)
		})
	}
	if watcher != nil {
		g.Go(func() error {
			watcher.Start(ctx)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-loaded:
		case <-ctx.Done():
			return nil
		}
		if !store.GetState().Settings.Setup.Completed {
			logger.Info("💡 No configuration found, run `gamecoach wizard` to set up a provider and hotkey")
		}
		return nil
	})
	if !*noHotkey {
		startHotkey(ctx, g, client, coach, store.GetState().Settings.Hotkey)
	}

	// Surfaces are closed while the IPC server can still reach them
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			logger.Info("Shutting down...")
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Surfaces did not close cleanly: %v", err)
		}
		cancelHost()
		return nil
	})

	logger.Info("🎮 GameCoach host started")
	err = g.Wait()
	store.Flush()
	if err != nil {
		return err
	}
	logger.Info("GameCoach host stopped")
	return nil
}

// startHotkey toggles analysis on the configured combination and follows
// rebinding through settings
func startHotkey(ctx context.Context, g *errgroup.Group, client *syncclient.Client, coach *orchestrator.Orchestrator, binding types.KeyBinding) {
	notifier := notification.New()
	monitor := keyboard.NewMonitor(binding, func() {
		enabled := coach.Toggle()
		body := "Analysis stopped"
		if enabled {
			body = "Analysis started"
		}
		if err := notifier.Notify("Game Coach", body); err != nil {
			logger.Debugf("Hotkey notification failed: %v", err)
		}
	})

	follow := func(gs types.GlobalState) {
		if gs.Settings.Hotkey != monitor.Tracker().Binding() {
			monitor.Tracker().SetBinding(gs.Settings.Hotkey)
			logger.Infof("Hotkey changed to %s", formatKeyCombo(gs.Settings.Hotkey))
		}
	}
	unsubscribe := client.Subscribe(follow)
	// saved settings may have reached the mirror before the subscription
	follow(client.State())

	g.Go(func() error {
		defer unsubscribe()
		logger.Infof("Press %s to start/stop analysis", formatKeyCombo(binding))
		if err := monitor.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("Hotkey disabled: %v", err)
		}
		return nil
	})
}
