package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// FFmpeg is the preferred decode path: an ffmpeg child process demultiplexes
// the camera's RTSP stream and re-emits it as an MJPEG byte stream on stdout.
// Low-latency flags mirror what the cameras tolerate best over TCP.
type FFmpeg struct {
	// BinPath is the ffmpeg executable, "ffmpeg" by default.
	BinPath string

	// Quality is the JPEG quantizer passed to ffmpeg (2 best .. 31 worst).
	Quality int
}

// NewFFmpeg creates the ffmpeg-based backend. quality is a 0-100 JPEG
// quality which is mapped onto ffmpeg's inverse 2-31 quantizer scale.
func NewFFmpeg(quality int) *FFmpeg {
	return &FFmpeg{BinPath: "ffmpeg", Quality: qualityToQuantizer(quality)}
}

func (f *FFmpeg) Name() string { return "ffmpeg" }

// Connect resolves the RTSP URL and starts the ffmpeg demuxer process.
func (f *FFmpeg) Connect(ctx context.Context, desc Descriptor) (Handle, error) {
	src, err := RTSPURL(desc)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-stimeout", "2000000",
		"-i", src,
		"-f", "mjpeg",
		"-q:v", strconv.Itoa(f.Quality),
		"-",
	}

	cmd := exec.CommandContext(ctx, f.BinPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("backend: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("backend: ffmpeg start: %w", err)
	}

	return &ffmpegHandle{cmd: cmd, rd: bufio.NewReaderSize(stdout, 256*1024)}, nil
}

type ffmpegHandle struct {
	cmd *exec.Cmd
	rd  *bufio.Reader
}

func (h *ffmpegHandle) ReadFrame(ctx context.Context) (RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return RawFrame{}, err
	}
	payload, err := ReadJPEG(h.rd)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return RawFrame{}, ErrEndOfStream
		}
		return RawFrame{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return RawFrame{Timestamp: time.Now(), Data: payload}, nil
}

func (h *ffmpegHandle) Close() error {
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
	return h.cmd.Wait()
}

const (
	jpegMarker = 0xFF
	jpegSOI    = 0xD8
	jpegEOI    = 0xD9
)

// ReadJPEG reads the next JPEG image from a concatenated MJPEG byte stream,
// returning the bytes from the SOI marker through the EOI marker inclusive.
func ReadJPEG(rd *bufio.Reader) ([]byte, error) {
	// Seek the start-of-image marker, skipping any inter-frame padding.
	for {
		b, err := rd.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != jpegMarker {
			continue
		}
		next, err := rd.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == jpegSOI {
			break
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(jpegMarker)
	buf.WriteByte(jpegSOI)

	for {
		b, err := rd.ReadByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		buf.WriteByte(b)
		if b != jpegMarker {
			continue
		}
		next, err := rd.ReadByte()
		if err != nil {
			return nil, io.ErrUnexpectedEOF
		}
		buf.WriteByte(next)
		if next == jpegEOI {
			return buf.Bytes(), nil
		}
	}
}

// qualityToQuantizer maps 0-100 JPEG quality onto ffmpeg's 2 (best) to
// 31 (worst) quantizer scale.
func qualityToQuantizer(quality int) int {
	if quality <= 0 {
		quality = 85
	}
	if quality > 100 {
		quality = 100
	}
	q := 2 + (100-quality)*29/100
	if q > 31 {
		q = 31
	}
	return q
}
