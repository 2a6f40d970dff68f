package surface

import (
	"testing"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPlaceStaysInsideArea(t *testing.T) {
	area := types.Bounds{Width: 1920, Height: 1080}
	size := types.Size{Width: 300, Height: 150}

	cases := []struct {
		name     string
		position types.Position
		want     types.Bounds
	}{
		{"top left", types.Position{X: 0, Y: 0}, types.Bounds{X: 0, Y: 0, Width: 300, Height: 150}},
		{"bottom right", types.Position{X: 100, Y: 100}, types.Bounds{X: 1620, Y: 930, Width: 300, Height: 150}},
		{"center", types.Position{X: 50, Y: 50}, types.Bounds{X: 810, Y: 465, Width: 300, Height: 150}},
		{"default", types.Position{X: 50, Y: 10}, types.Bounds{X: 810, Y: 33, Width: 300, Height: 150}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Place(area, size, tc.position)
			assert.Equal(t, tc.want, got)
			assert.GreaterOrEqual(t, got.X, 0)
			assert.LessOrEqual(t, got.X, area.Width-size.Width)
			assert.GreaterOrEqual(t, got.Y, 0)
			assert.LessOrEqual(t, got.Y, area.Height-size.Height)
		})
	}
}

func TestPlaceHonoursAreaOffset(t *testing.T) {
	area := types.Bounds{X: 1920, Y: 40, Width: 1280, Height: 1000}
	got := Place(area, types.Size{Width: 200, Height: 100}, types.Position{X: 100, Y: 0})
	assert.Equal(t, types.Bounds{X: 1920 + 1080, Y: 40, Width: 200, Height: 100}, got)
}

func TestPlaceSurfaceLargerThanArea(t *testing.T) {
	got := Place(types.Bounds{Width: 200, Height: 100}, types.Size{Width: 400, Height: 300}, types.Position{X: 50, Y: 50})
	assert.Equal(t, 0, got.X)
	assert.Equal(t, 0, got.Y)
}
