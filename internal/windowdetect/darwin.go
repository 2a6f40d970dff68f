package windowdetect

import (
	"context"
	"os/exec"
	"strings"
)

type darwinDetector struct{}

func newDarwinDetector() *darwinDetector {
	return &darwinDetector{}
}

const focusedScript = `
	tell application "System Events"
		set frontApp to first application process whose frontmost is true
		set appName to name of frontApp
		set windowTitle to ""
		try
			set windowTitle to name of first window of frontApp
		end try
		return appName & "|" & windowTitle
	end tell
`

const listScript = `
	set out to ""
	tell application "System Events"
		repeat with p in (application processes whose visible is true)
			repeat with w in windows of p
				set out to out & (name of p) & "|" & (name of w) & linefeed
			end repeat
		end repeat
	end tell
	return out
`

func parseLine(line string) WindowInfo {
	parts := strings.SplitN(strings.TrimSpace(line), "|", 2)
	info := WindowInfo{AppName: parts[0]}
	if len(parts) > 1 {
		info.Title = parts[1]
	}
	return info
}

func (d *darwinDetector) GetFocusedWindow(ctx context.Context) (*WindowInfo, error) {
	output, err := exec.CommandContext(ctx, "osascript", "-e", focusedScript).Output()
	if err != nil {
		return nil, err
	}
	info := parseLine(string(output))
	return &info, nil
}

func (d *darwinDetector) ListWindows(ctx context.Context) ([]WindowInfo, error) {
	output, err := exec.CommandContext(ctx, "osascript", "-e", listScript).Output()
	if err != nil {
		return nil, err
	}

	var windows []WindowInfo
	for _, line := range strings.Split(string(output), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		windows = append(windows, parseLine(line))
	}
	return windows, nil
}
