package capture

import (
	"fmt"
	"image"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/go-vgo/robotgo"
)

// Screen is the raw display access the provider needs
type Screen interface {
	NumDisplays() int
	Bounds(display int) types.Bounds
	Grab(bounds types.Bounds) (image.Image, error)
}

// RobotgoScreen grabs pixels through robotgo
type RobotgoScreen struct{}

func (RobotgoScreen) NumDisplays() int {
	return robotgo.DisplaysNum()
}

func (RobotgoScreen) Bounds(display int) types.Bounds {
	x, y, w, h := robotgo.GetDisplayBounds(display)
	return types.Bounds{X: x, Y: y, Width: w, Height: h}
}

func (RobotgoScreen) Grab(b types.Bounds) (image.Image, error) {
	img, err := robotgo.CaptureImg(b.X, b.Y, b.Width, b.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screen: %w", err)
	}
	return img, nil
}
