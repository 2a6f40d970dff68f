package clipboard

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/go-vgo/robotgo"
)

// Copy puts text on the system clipboard
func Copy(text string) error {
	logger.Debugf("clipboard: copying %d bytes", len(text))

	name, args := command()
	if name == "" {
		// robotgo talks to X11/Cocoa directly when no helper is installed
		if err := robotgo.WriteAll(text); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
		return nil
	}

	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// command picks the clipboard helper for this session, or "" for none
func command() (string, []string) {
	switch runtime.GOOS {
	case "darwin":
		return "pbcopy", nil
	case "linux":
		if isWayland() {
			if _, err := exec.LookPath("wl-copy"); err == nil {
				return "wl-copy", nil
			}
		}
		if _, err := exec.LookPath("xclip"); err == nil {
			return "xclip", []string{"-selection", "clipboard"}
		}
	}
	return "", nil
}

// isWayland checks if the current session is running Wayland
func isWayland() bool {
	session := os.Getenv("XDG_SESSION_TYPE")
	return strings.ToLower(session) == "wayland"
}
