package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"testing"

	"github.com/dooshek/gamecoach/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScreen struct {
	mu       sync.Mutex
	displays []types.Bounds
	grabErr  error
}

func (s *fakeScreen) NumDisplays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.displays)
}

func (s *fakeScreen) Bounds(i int) types.Bounds {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.displays) {
		return types.Bounds{}
	}
	return s.displays[i]
}

func (s *fakeScreen) Grab(b types.Bounds) (image.Image, error) {
	if s.grabErr != nil {
		return nil, s.grabErr
	}
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y += 8 {
		for x := 0; x < b.Width; x += 8 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	return img, nil
}

func newFake() *fakeScreen {
	return &fakeScreen{displays: []types.Bounds{
		{Width: 1920, Height: 1080},
		{X: 1920, Width: 1280, Height: 1024},
	}}
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestListSources(t *testing.T) {
	p := NewProvider(newFake())

	sources, err := p.ListSources(context.Background())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "screen:0", sources[0].ID)
	assert.Equal(t, "screen:1", sources[1].ID)
	assert.Contains(t, sources[1].Name, "1280x1024")
	assert.True(t, strings.HasPrefix(sources[0].Thumbnail, "data:image/jpeg;base64,"))
}

func TestCaptureFrameNotRunning(t *testing.T) {
	p := NewProvider(newFake())
	frame, err := p.CaptureFrame(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestCaptureFrameScalesToFit(t *testing.T) {
	p := NewProvider(newFake())
	p.Configure(types.CaptureSettings{Width: 640, Height: 640, JPEGQuality: 70})
	require.NoError(t, p.Start(context.Background(), "screen:0"))
	assert.True(t, p.Running())

	frame, err := p.CaptureFrame(context.Background())
	require.NoError(t, err)
	img := decode(t, frame)
	assert.Equal(t, 640, img.Bounds().Dx())
	assert.Equal(t, 360, img.Bounds().Dy())

	p.Stop()
	assert.False(t, p.Running())
	frame, err = p.CaptureFrame(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestStartRejectsUnknownSource(t *testing.T) {
	p := NewProvider(newFake())
	assert.ErrorIs(t, p.Start(context.Background(), "screen:7"), ErrUnknownSource)
	assert.ErrorIs(t, p.Start(context.Background(), "window:1"), ErrUnknownSource)
	assert.NoError(t, p.Start(context.Background(), ""))
}

func TestCaptureFrameDisplayGoneOrGrabFails(t *testing.T) {
	screen := newFake()
	p := NewProvider(screen)
	require.NoError(t, p.Start(context.Background(), "screen:1"))

	screen.mu.Lock()
	screen.displays = screen.displays[:1]
	screen.mu.Unlock()
	frame, err := p.CaptureFrame(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)

	require.NoError(t, p.Start(context.Background(), "screen:0"))
	screen.grabErr = errors.New("no X display")
	frame, err = p.CaptureFrame(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestWorkAreaIsPrimaryDisplay(t *testing.T) {
	p := NewProvider(newFake())
	assert.Equal(t, types.Bounds{Width: 1920, Height: 1080}, p.WorkArea())
}
