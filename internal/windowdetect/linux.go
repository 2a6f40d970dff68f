package windowdetect

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/dooshek/gamecoach/internal/logger"
)

type linuxDetector struct{}

func newLinuxDetector() (*linuxDetector, error) {
	if err := checkXdotool(); err != nil {
		return nil, err
	}
	return &linuxDetector{}, nil
}

// checkXdotool checks if xdotool is installed
func checkXdotool() error {
	_, err := exec.LookPath("xdotool")
	if err != nil {
		return errors.New("xdotool is not installed - game detection will not work. Install it using:\n" +
			"Fedora: sudo dnf install xdotool\n" +
			"Ubuntu/Debian: sudo apt-get install xdotool\n" +
			"Arch Linux: sudo pacman -S xdotool")
	}
	return nil
}

func xdotool(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, "xdotool", args...).Output()
	if err != nil {
		return "", fmt.Errorf("xdotool %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (d *linuxDetector) window(ctx context.Context, id string) (WindowInfo, error) {
	name, err := xdotool(ctx, "getwindowname", id)
	if err != nil {
		return WindowInfo{}, err
	}
	class, err := xdotool(ctx, "getwindowclassname", id)
	if err != nil {
		return WindowInfo{}, err
	}
	return WindowInfo{Title: name, AppName: class}, nil
}

func (d *linuxDetector) GetFocusedWindow(ctx context.Context) (*WindowInfo, error) {
	id, err := xdotool(ctx, "getactivewindow")
	if err != nil {
		return nil, err
	}
	info, err := d.window(ctx, id)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *linuxDetector) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	out, err := xdotool(ctx, "search", "--onlyvisible", "--name", ".")
	if err != nil {
		// search exits 1 when nothing matches
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}

	var windows []WindowInfo
	for _, id := range strings.Fields(out) {
		info, err := d.window(ctx, id)
		if err != nil {
			logger.Debugf("Skipping window %s: %v", id, err)
			continue
		}
		windows = append(windows, info)
	}
	return windows, nil
}
