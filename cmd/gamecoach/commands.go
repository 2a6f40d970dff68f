package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/dooshek/gamecoach/internal/capture"
	"github.com/dooshek/gamecoach/internal/config"
	"github.com/dooshek/gamecoach/internal/dbus"
	"github.com/dooshek/gamecoach/internal/ipc"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/overlay"
	"github.com/dooshek/gamecoach/internal/panel"
	"github.com/dooshek/gamecoach/internal/templates"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/fatih/color"
)

const hostCallTimeout = 5 * time.Second

// runSurface is spawned by the host for the overlay; it is not meant to be
// started by hand
func runSurface(args []string) error {
	fs, common := newFlagSet("surface")
	role := fs.String("role", string(types.RoleOverlay), "Surface role")
	id := fs.String("id", "", "Surface id issued by the host")
	socket := fs.String("socket", "", "Host socket path")
	x := fs.Int("x", 0, "Left edge in pixels")
	y := fs.Int("y", 0, "Top edge in pixels")
	width := fs.Int("width", 0, "Width in pixels")
	height := fs.Int("height", 0, "Height in pixels")
	fs.Parse(args)
	common.setupLogging(*role, "")

	if types.Role(*role) != types.RoleOverlay {
		return fmt.Errorf("unsupported surface role %q", *role)
	}
	if *id == "" || *socket == "" {
		return fmt.Errorf("--id and --socket are required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return overlay.Run(ctx, overlay.Options{
		SocketPath: *socket,
		ID:         *id,
		Bounds:     types.Bounds{X: *x, Y: *y, Width: *width, Height: *height},
	})
}

func runPanel(args []string) error {
	fs, common := newFlagSet("panel")
	socket := fs.String("socket", "", "Host socket path (default: the host's runtime socket)")
	fs.Parse(args)

	files := mustFileOps()
	common.setupLogging("panel", panelLogFile(files))

	if *socket == "" {
		*socket = files.GetSocketPath()
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	return panel.Run(ctx, *socket)
}

func runCtl(args []string) error {
	fs, common := newFlagSet("ctl")
	fs.Parse(args)
	common.setupLogging("ctl", "")

	if fs.NArg() != 1 {
		names := make([]string, 0, len(dbus.Commands))
		for name := range dbus.Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		return fmt.Errorf("expected one command, one of %v", names)
	}

	client, err := dbus.Dial()
	if err != nil {
		return err
	}
	defer client.Close()

	out, err := client.Call(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

func runSources(args []string) error {
	fs, common := newFlagSet("sources")
	selectID := fs.String("select", "", "Select the capture source with this id")
	fs.Parse(args)
	common.setupLogging("sources", "")

	ctx := context.Background()
	sources, err := capture.NewProvider(capture.RobotgoScreen{}).ListSources(ctx)
	if err != nil {
		return err
	}

	if *selectID == "" {
		bold := color.New(color.Bold)
		for _, src := range sources {
			bold.Printf("%-10s", src.ID)
			fmt.Printf(" %s\n", src.Name)
		}
		return nil
	}

	found := false
	for _, src := range sources {
		found = found || src.ID == *selectID
	}
	if !found {
		return fmt.Errorf("%w: %s", capture.ErrUnknownSource, *selectID)
	}
	if err := updateSettings(ctx, types.SettingsPatch{"captureSourceId": *selectID}); err != nil {
		return err
	}
	color.Green("Capture source set to %s", *selectID)
	return nil
}

func runTemplates(args []string) error {
	fs, common := newFlagSet("templates")
	export := fs.String("export", "", "Print the template with this id as JSON")
	importPath := fs.String("import", "", "Import a template from a JSON file and store it in settings")
	activate := fs.String("activate", "", "Make the template with this id active")
	fs.Parse(args)
	common.setupLogging("templates", "")

	ctx := context.Background()
	files := mustFileOps()
	settings, err := loadSettings(ctx, config.NewFileStorage(files))
	if err != nil {
		return err
	}
	catalog := templates.NewCatalog()
	catalog.LoadCustom(settings.Instructions.Custom)

	switch {
	case *export != "":
		data, err := catalog.Export(*export)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil

	case *importPath != "":
		data, err := os.ReadFile(*importPath)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		t, err := catalog.Import(data)
		if err != nil {
			return err
		}
		custom := templates.UpsertCustom(settings.Instructions.Custom, t)
		if err := updateSettings(ctx, types.SettingsPatch{
			"instructions": map[string]any{"custom": custom},
		}); err != nil {
			return err
		}
		color.Green("Imported template %s (%s)", t.ID, t.Name)
		return nil

	case *activate != "":
		if _, ok := catalog.Get(*activate); !ok {
			return fmt.Errorf("%w: %s", templates.ErrTemplateNotFound, *activate)
		}
		if err := updateSettings(ctx, types.SettingsPatch{
			"instructions": map[string]any{"activeTemplate": *activate},
		}); err != nil {
			return err
		}
		color.Green("Active template set to %s", *activate)
		return nil
	}

	bold := color.New(color.Bold)
	for _, t := range catalog.Templates() {
		marker := " "
		if t.ID == settings.Instructions.ActiveTemplate {
			marker = "*"
		}
		kind := "custom"
		if t.IsBuiltIn {
			kind = "built-in"
		}
		fmt.Printf("%s ", marker)
		bold.Printf("%-24s", t.ID)
		fmt.Printf(" %-12s %-8s %s\n", t.Category, kind, t.Name)
	}
	return nil
}

func runWizard(args []string) error {
	fs, common := newFlagSet("wizard")
	fs.Parse(args)
	common.setupLogging("wizard", "")

	files := mustFileOps()
	return config.RunWizard(context.Background(), config.NewFileStorage(files), capture.NewProvider(capture.RobotgoScreen{}))
}

func loadSettings(ctx context.Context, storage *config.FileStorage) (types.Settings, error) {
	patch, err := storage.Load(ctx)
	if err != nil {
		return types.Settings{}, err
	}
	return types.MergeSettings(types.DefaultSettings(), patch)
}

// updateSettings applies patch through a running host so every surface
// sees it, or edits the settings file when no host is running
func updateSettings(ctx context.Context, patch types.SettingsPatch) error {
	files := mustFileOps()

	callCtx, cancel := context.WithTimeout(ctx, hostCallTimeout)
	defer cancel()
	conn, err := ipc.Dial(callCtx, files.GetSocketPath())
	if err == nil {
		defer conn.Close()
		return conn.SetSettings(callCtx, patch)
	}
	logger.Debugf("No running host (%v), writing settings file", err)

	storage := config.NewFileStorage(files)
	settings, err := loadSettings(ctx, storage)
	if err != nil {
		return err
	}
	merged, err := types.MergeSettings(settings, patch)
	if err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return storage.Save(ctx, merged)
}
