package notification

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/dooshek/gamecoach/internal/logger"
)

type darwinNotifier struct{}

func newDarwinNotifier() platformNotifier {
	return &darwinNotifier{}
}

func quote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func (n *darwinNotifier) send(msg message) error {
	logger.Debugf("Sending macOS notification: %s - %s", msg.title, msg.body)
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, quote(msg.body), quote(msg.title))
	if msg.urgent {
		script += ` sound name "Basso"`
	}
	cmd := exec.Command("osascript", "-e", script)
	if err := cmd.Run(); err != nil {
		logger.Error("Failed to send macOS notification", err)
		return err
	}
	return nil
}

func (n *darwinNotifier) clear() error {
	return nil
}

func (n *darwinNotifier) playUrgentBeep() error {
	cmd := exec.Command("afplay", "/System/Library/Sounds/Basso.aiff")
	if err := cmd.Run(); err != nil {
		logger.Error("Failed to play urgent beep", err)
		return err
	}
	return nil
}
