package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dooshek/gamecoach/internal/fileops"
	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
)

const usage = `Usage: gamecoach <command> [flags]

Commands:
  run        start the host (state, analysis, overlay, D-Bus, hotkey)
  panel      open the terminal control panel
  ctl        control a running host over D-Bus (status, show, hide, start, stop, toggle, history, stats, state)
  sources    list capture sources, or select one with --select
  templates  list, export or import instruction templates
  wizard     run the configuration wizard

Run 'gamecoach <command> --help' for the flags of a command.
`

// commonFlags are accepted by every command
type commonFlags struct {
	logLevel    *string
	logFilename *string
}

func newFlagSet(name string) (*flag.FlagSet, commonFlags) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "Usage of gamecoach %s:\n", name)
		fs.VisitAll(func(f *flag.Flag) {
			fmt.Fprintf(out, "  --%s", f.Name)
			name, usage := flag.UnquoteUsage(f)
			if len(name) > 0 {
				fmt.Fprintf(out, " %s", name)
			}
			fmt.Fprintf(out, "\n    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Fprintf(out, " (default %q)", f.DefValue)
			}
			fmt.Fprintf(out, "\n")
		})
	}
	return fs, commonFlags{
		logLevel:    fs.String("log-level", "info", "Set log level (debug|info|warn|error)"),
		logFilename: fs.String("log-filename", "", "Log to file instead of stderr"),
	}
}

// setupLogging applies the common flags; fallback is used when no file was given
func (c commonFlags) setupLogging(component, fallback string) {
	logger.SetLevel(*c.logLevel)
	logger.SetComponent(component)

	filename := *c.logFilename
	if filename == "" {
		filename = fallback
	}
	if filename != "" {
		if err := logger.SetOutputFile(filename); err != nil {
			fmt.Printf("Error setting log file: %v\n", err)
			os.Exit(1)
		}
	}
}

// formatKeyCombo formats a key combination into a human-readable string
func formatKeyCombo(cfg types.KeyBinding) string {
	var parts []string
	if cfg.Ctrl {
		parts = append(parts, "CTRL")
	}
	if cfg.Shift {
		parts = append(parts, "SHIFT")
	}
	if cfg.Alt {
		parts = append(parts, "ALT")
	}
	if cfg.Super {
		parts = append(parts, "SUPER")
	}
	if key := cfg.Key; key != "" {
		parts = append(parts, strings.ToUpper(key))
	}
	return strings.Join(parts, " + ")
}

func mustFileOps() *fileops.DefaultFileOps {
	files, err := fileops.NewDefaultFileOps()
	if err != nil {
		logger.Error("Failed to initialize file operations", err)
		os.Exit(1)
	}
	if err := files.EnsureDirectories(); err != nil {
		logger.Error("Failed to create necessary directories", err)
		os.Exit(1)
	}
	return files
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runHost(args)
	case "surface":
		err = runSurface(args)
	case "panel":
		err = runPanel(args)
	case "ctl":
		err = runCtl(args)
	case "sources":
		err = runSources(args)
	case "templates":
		err = runTemplates(args)
	case "wizard":
		err = runWizard(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	logger.CloseLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gamecoach %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func panelLogFile(files fileops.FileOps) string {
	return filepath.Join(files.GetLogsDir(), "panel.log")
}
