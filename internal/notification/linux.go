package notification

import (
	"os/exec"
	"strconv"

	"github.com/dooshek/gamecoach/internal/logger"
)

const (
	// notification servers replace bubbles that share this hint
	syncHint   = "string:x-canonical-private-synchronous:gamecoach-advice"
	urgentBeep = "/usr/share/sounds/freedesktop/stereo/dialog-warning.oga"
)

type linuxNotifier struct{}

func newLinuxNotifier() platformNotifier {
	return &linuxNotifier{}
}

func notifySendArgs(n message) []string {
	args := []string{"-a", appTitle}
	if n.urgent {
		args = append(args, "-u", "critical")
	}
	if n.expire > 0 {
		args = append(args, "-t", strconv.FormatInt(n.expire.Milliseconds(), 10))
	}
	if n.replace {
		args = append(args, "-h", syncHint)
	}
	return append(args, n.title, n.body)
}

func (n *linuxNotifier) send(msg message) error {
	logger.Debugf("Sending notification: %s - %s", msg.title, msg.body)
	go func() {
		if err := exec.Command("notify-send", notifySendArgs(msg)...).Run(); err != nil {
			logger.Error("Failed to send notification", err)
		}
	}()
	return nil
}

// clear is a no-op; the bubble expires on its own
func (n *linuxNotifier) clear() error {
	return nil
}

func (n *linuxNotifier) playUrgentBeep() error {
	go func() {
		if err := exec.Command("paplay", urgentBeep).Run(); err != nil {
			logger.Error("Failed to play urgent beep", err)
		}
	}()
	return nil
}
