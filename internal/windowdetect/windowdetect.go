package windowdetect

import (
	"context"
	"fmt"
	"runtime"
)

// WindowInfo contains information about a top-level window
type WindowInfo struct {
	Title   string `json:"title"`
	AppName string `json:"appName"`
}

// Detector defines the interface for window detection
type Detector interface {
	GetFocusedWindow(ctx context.Context) (*WindowInfo, error)
	ListWindows(ctx context.Context) ([]WindowInfo, error)
}

// New creates a new platform-specific window detector
func New() (Detector, error) {
	switch runtime.GOOS {
	case "darwin":
		return newDarwinDetector(), nil
	default:
		d, err := newLinuxDetector()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Linux window detector: %w", err)
		}
		return d, nil
	}
}
