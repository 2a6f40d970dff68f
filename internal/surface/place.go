package surface

import "github.com/dooshek/gamecoach/internal/types"

// Place converts a center position given in percent of area into absolute
// bounds. The top-left corner is clamped so the surface stays inside area
// for any percentage, including 0 and 100.
func Place(area types.Bounds, size types.Size, position types.Position) types.Bounds {
	centerX := float64(area.Width) * position.X / 100
	centerY := float64(area.Height) * position.Y / 100

	left := clampInt(int(centerX)-size.Width/2, 0, area.Width-size.Width)
	top := clampInt(int(centerY)-size.Height/2, 0, area.Height-size.Height)

	return types.Bounds{
		X:      area.X + left,
		Y:      area.Y + top,
		Width:  size.Width,
		Height: size.Height,
	}
}

// clampInt favours lo when the range is empty (surface larger than area)
func clampInt(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
