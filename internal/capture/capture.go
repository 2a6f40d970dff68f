package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strconv"
	"strings"
	"sync"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"golang.org/x/image/draw"
)

// ErrUnknownSource is returned by Start for ids that name no display
var ErrUnknownSource = errors.New("unknown capture source")

const (
	sourcePrefix     = "screen:"
	thumbnailWidth   = 320
	thumbnailHeight  = 180
	thumbnailQuality = 60
)

// Provider produces JPEG frames of one display
type Provider struct {
	screen Screen

	mu       sync.Mutex
	running  bool
	display  int
	settings types.CaptureSettings
}

func NewProvider(screen Screen) *Provider {
	return &Provider{
		screen:   screen,
		settings: types.DefaultSettings().Capture,
	}
}

// Configure sets the output size and quality for subsequent frames
func (p *Provider) Configure(settings types.CaptureSettings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
}

// SourceID names a display the way ListSources does
func SourceID(display int) string {
	return sourcePrefix + strconv.Itoa(display)
}

func parseSourceID(id string) (int, error) {
	if id == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, sourcePrefix))
	if err != nil || !strings.HasPrefix(id, sourcePrefix) || n < 0 {
		return 0, fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	return n, nil
}

// ListSources returns one source per attached display
func (p *Provider) ListSources(ctx context.Context) ([]types.Source, error) {
	n := p.screen.NumDisplays()
	sources := make([]types.Source, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := p.screen.Bounds(i)
		src := types.Source{
			ID:   SourceID(i),
			Name: fmt.Sprintf("Display %d (%dx%d)", i+1, b.Width, b.Height),
		}
		if img, err := p.screen.Grab(b); err == nil {
			if thumb, err := encode(img, types.Size{Width: thumbnailWidth, Height: thumbnailHeight}, thumbnailQuality); err == nil {
				src.Thumbnail = "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(thumb)
			}
		} else {
			logger.Debugf("No thumbnail for display %d: %v", i, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Start begins capturing sourceID; an empty id selects the first display
func (p *Provider) Start(_ context.Context, sourceID string) error {
	display, err := parseSourceID(sourceID)
	if err != nil {
		return err
	}
	if display >= p.screen.NumDisplays() {
		return fmt.Errorf("%w: %s", ErrUnknownSource, sourceID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.display = display
	p.running = true
	logger.Debugf("Capture started on %s", SourceID(display))
	return nil
}

func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		logger.Debug("Capture stopped")
	}
	p.running = false
}

func (p *Provider) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// CaptureFrame grabs and encodes one frame. It returns nil without an error
// when no frame is available.
func (p *Provider) CaptureFrame(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	running, display, settings := p.running, p.display, p.settings
	p.mu.Unlock()

	if !running {
		return nil, nil
	}
	if display >= p.screen.NumDisplays() {
		logger.Warnf("Display %d is gone", display)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, err := p.screen.Grab(p.screen.Bounds(display))
	if err != nil {
		logger.Warnf("Frame grab failed: %v", err)
		return nil, nil
	}

	data, err := encode(img, types.Size{Width: settings.Width, Height: settings.Height}, settings.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// WorkArea reports the primary display geometry
func (p *Provider) WorkArea() types.Bounds {
	return p.screen.Bounds(0)
}

// encode scales img to fit inside bound, preserving aspect ratio, and
// encodes it as JPEG
func encode(img image.Image, bound types.Size, quality int) ([]byte, error) {
	dst := scaleToFit(img, bound)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scaleToFit(img image.Image, bound types.Size) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if bound.Width <= 0 || bound.Height <= 0 || (w <= bound.Width && h <= bound.Height) {
		return img
	}

	scale := min(float64(bound.Width)/float64(w), float64(bound.Height)/float64(h))
	tw := max1(int(float64(w) * scale))
	th := max1(int(float64(h) * scale))

	dst := image.NewRGBA(image.Rect(0, 0, tw, th))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func max1(v int) int {
	if v < 1 {
		return 1
	}
	return v
}
