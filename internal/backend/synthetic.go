package backend

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"
)

const (
	testPatternWidth  = 640
	testPatternHeight = 480
)

// Synthetic generates a deterministic test pattern at a fixed frame rate. It
// stands in for local capture devices (WEBCAM descriptors) and gives tests a
// backend that needs no camera on the network.
type Synthetic struct {
	FPS     float64
	Quality int
}

// NewSynthetic creates the test-pattern backend. fps <= 0 defaults to 15.
func NewSynthetic(fps float64, quality int) *Synthetic {
	if fps <= 0 {
		fps = 15
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Synthetic{FPS: fps, Quality: quality}
}

func (s *Synthetic) Name() string { return "synthetic" }

func (s *Synthetic) Connect(_ context.Context, desc Descriptor) (Handle, error) {
	return &syntheticHandle{
		camera:   desc.Name,
		interval: time.Duration(float64(time.Second) / s.FPS),
		quality:  s.Quality,
		closed:   make(chan struct{}),
	}, nil
}

type syntheticHandle struct {
	camera   string
	interval time.Duration
	quality  int
	seq      uint64
	next     time.Time
	closed   chan struct{}
	once     sync.Once
}

func (h *syntheticHandle) ReadFrame(ctx context.Context) (RawFrame, error) {
	now := time.Now()
	if h.next.IsZero() {
		h.next = now
	}
	if wait := h.next.Sub(now); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return RawFrame{}, ctx.Err()
		case <-h.closed:
			return RawFrame{}, ErrEndOfStream
		}
	}
	h.next = h.next.Add(h.interval)
	h.seq++

	payload, err := renderTestPattern(h.camera, h.seq, h.quality)
	if err != nil {
		return RawFrame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return RawFrame{Timestamp: time.Now(), Data: payload}, nil
}

func (h *syntheticHandle) Close() error {
	h.once.Do(func() { close(h.closed) })
	return nil
}

// renderTestPattern draws a frame with a slowly cycling background so motion
// is visible in a viewer, overlaid with the camera name and frame counter.
func renderTestPattern(camera string, seq uint64, quality int) ([]byte, error) {
	dc := gg.NewContext(testPatternWidth, testPatternHeight)

	phase := float64(seq) / 50
	dc.SetRGB(0.1+0.1*math.Sin(phase), 0.1, 0.25+0.15*math.Cos(phase))
	dc.Clear()

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(camera, testPatternWidth/2, testPatternHeight/2-20, 0.5, 0.5)
	dc.DrawStringAnchored(fmt.Sprintf("frame %d", seq), testPatternWidth/2, testPatternHeight/2+10, 0.5, 0.5)
	dc.DrawStringAnchored(time.Now().Format(time.RFC3339), testPatternWidth/2, testPatternHeight/2+40, 0.5, 0.5)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	placeholderOnce sync.Once
	placeholderData []byte
)

// PlaceholderJPEG returns a static "no signal" frame used by transports when
// a keep-alive fires before any camera frame exists.
func PlaceholderJPEG() []byte {
	placeholderOnce.Do(func() {
		dc := gg.NewContext(testPatternWidth, testPatternHeight)
		dc.SetRGB(0, 0, 0)
		dc.Clear()
		dc.SetRGB(0.7, 0.7, 0.7)
		dc.DrawStringAnchored("no signal", testPatternWidth/2, testPatternHeight/2, 0.5, 0.5)

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: 75}); err != nil {
			// A render failure here would be a programming error; fall back
			// to a bare SOI/EOI pair so transports still emit a valid part.
			placeholderData = []byte{0xFF, 0xD8, 0xFF, 0xD9}
			return
		}
		placeholderData = buf.Bytes()
	})
	return placeholderData
}
