package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// MJPEG is the tolerant fallback decode path: it reads the camera's HTTP
// multipart MJPEG preview endpoint. Slower to start and lower quality than
// the RTSP path, but it survives firmware that mangles RTSP.
type MJPEG struct {
	Client *http.Client
}

// NewMJPEG creates the HTTP MJPEG fallback backend.
func NewMJPEG() *MJPEG {
	return &MJPEG{
		Client: &http.Client{
			// Connect-phase guard only; the response body itself streams
			// indefinitely, so no overall request timeout.
			Transport: http.DefaultTransport,
		},
	}
}

func (m *MJPEG) Name() string { return "mjpeg" }

// Connect opens the multipart preview stream and positions the reader at the
// first part boundary.
func (m *MJPEG) Connect(ctx context.Context, desc Descriptor) (Handle, error) {
	src, err := MJPEGURL(desc)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("backend: mjpeg request: %w", err)
	}
	if desc.Username != "" {
		req.SetBasicAuth(desc.Username, desc.Password)
	}

	resp, err := m.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: mjpeg connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("backend: mjpeg connect: camera returned %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		return nil, fmt.Errorf("backend: mjpeg connect: unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	return &mjpegHandle{
		body: resp.Body,
		mr:   multipart.NewReader(resp.Body, params["boundary"]),
	}, nil
}

type mjpegHandle struct {
	body io.ReadCloser
	mr   *multipart.Reader
}

func (h *mjpegHandle) ReadFrame(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}

	part, err := h.mr.NextPart()
	if err != nil {
		if err == io.EOF {
			return RawFrame{}, ErrEndOfStream
		}
		return RawFrame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer part.Close()

	if ct := part.Header.Get("Content-Type"); ct != "" && ct != "image/jpeg" {
		return RawFrame{}, fmt.Errorf("%w: part content type %q", ErrDecode, ct)
	}

	payload, err := io.ReadAll(part)
	if err != nil {
		return RawFrame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(payload) == 0 {
		return RawFrame{}, fmt.Errorf("%w: empty part", ErrDecode)
	}

	return RawFrame{Timestamp: time.Now(), Data: payload}, nil
}

func (h *mjpegHandle) Close() error {
	return h.body.Close()
}
