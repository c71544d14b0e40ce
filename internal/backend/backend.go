// Package backend provides the decode backends a camera stream can be read
// through. Every variant satisfies the same small capability contract: connect
// to a source, read decoded frames, close. The stream manager tries variants
// in order and falls back when the preferred one cannot deliver.
package backend

import (
	"context"
	"errors"
	"time"
)

// Backend hints accepted in a camera descriptor.
const (
	HintAuto      = ""
	HintFFmpeg    = "ffmpeg"
	HintMJPEG     = "mjpeg"
	HintSynthetic = "synthetic"
)

var (
	// ErrDecode marks a single undecodable frame. The reader counts these;
	// one occurrence does not tear the connection down.
	ErrDecode = errors.New("backend: frame decode failed")

	// ErrEndOfStream is returned when the source closed the stream cleanly.
	ErrEndOfStream = errors.New("backend: end of stream")
)

// Descriptor identifies a camera and how to reach it. Immutable after load.
type Descriptor struct {
	Name       string `json:"name"`
	Brand      string `json:"brand"`
	Host       string `json:"host"`
	Port       int    `json:"port,omitempty"`
	Channel    int    `json:"channel,omitempty"`
	StreamType string `json:"stream,omitempty"` // "main" or "sub"
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`

	// SourceURL overrides brand-based URL construction when set.
	SourceURL string `json:"source_url,omitempty"`

	// BackendHint pins the decode path ("ffmpeg", "mjpeg", "synthetic").
	BackendHint string `json:"backend,omitempty"`
}

// RawFrame is one decoded frame as produced by a backend. The payload layout
// is backend-native; the encode function injected into the stream manager
// turns it into transport bytes.
type RawFrame struct {
	Timestamp time.Time
	Data      []byte
}

// Backend is one decode strategy for a camera source.
type Backend interface {
	// Name identifies the variant in logs, metrics and status output.
	Name() string

	// Connect establishes a connection to the camera described by desc.
	Connect(ctx context.Context, desc Descriptor) (Handle, error)
}

// Handle is an open backend connection, owned exclusively by one reader.
type Handle interface {
	// ReadFrame blocks until the next decoded frame is available. It returns
	// ErrEndOfStream on clean source shutdown and wraps ErrDecode for frames
	// that arrived but could not be decoded.
	ReadFrame(ctx context.Context) (RawFrame, error)

	Close() error
}

// EncodeFunc turns a decoded frame into transport payload bytes. Encoding is
// a black box to the stream core; quality is passed through untouched.
type EncodeFunc func(raw RawFrame, quality int) ([]byte, error)

// PassthroughEncode is the default encoder for backends that already emit
// encoded payloads (both shipped network variants produce JPEG).
func PassthroughEncode(raw RawFrame, _ int) ([]byte, error) {
	return raw.Data, nil
}

// StackFor returns the ordered backend variants for a descriptor: preferred
// first, fallback second. The order is fixed per connection cycle and
// re-evaluated from the top on every fresh cycle, so a recovered camera
// migrates back to the preferred path on its next reconnect.
func StackFor(desc Descriptor, quality int) []Backend {
	if IsWebcam(desc.Brand) || desc.BackendHint == HintSynthetic {
		return []Backend{NewSynthetic(0, quality)}
	}
	switch desc.BackendHint {
	case HintFFmpeg:
		return []Backend{NewFFmpeg(quality)}
	case HintMJPEG:
		return []Backend{NewMJPEG()}
	default:
		return []Backend{NewFFmpeg(quality), NewMJPEG()}
	}
}
