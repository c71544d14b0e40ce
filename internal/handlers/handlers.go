// Package handlers contains the HTTP and WebSocket handlers for the service.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/version"
)

// LookoutHandlers contains the HTTP handlers for the service
type LookoutHandlers struct {
	registry  *stream.Registry
	logger    logging.Logger
	startTime time.Time
}

// NewLookoutHandlers creates a new handlers instance
func NewLookoutHandlers(registry *stream.Registry, logger logging.Logger) *LookoutHandlers {
	return &LookoutHandlers{
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
	}
}

// StatusResponse is the service-wide status payload.
type StatusResponse struct {
	Service   string          `json:"service"`
	Version   string          `json:"version"`
	Uptime    string          `json:"uptime"`
	Timestamp time.Time       `json:"timestamp"`
	Cameras   []stream.Status `json:"cameras"`
}

// ErrorResponse is the error payload shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HandleStatus reports every roster camera's pipeline status.
func (h *LookoutHandlers) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Service:   "lookout",
		Version:   version.Version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().UTC(),
		Cameras:   h.registry.StatusAll(),
	})
}

// HandleCameraStatus reports one camera's pipeline status.
func (h *LookoutHandlers) HandleCameraStatus(c *gin.Context) {
	st, err := h.registry.StatusFor(c.Param("camera"))
	if err != nil {
		h.abortStreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleRestart forces a camera's pipeline to reconnect.
func (h *LookoutHandlers) HandleRestart(c *gin.Context) {
	camera := c.Param("camera")
	if err := h.registry.Restart(camera); err != nil {
		h.abortStreamError(c, err)
		return
	}
	h.logger.WithField("camera", camera).Info("restart requested via API")
	c.JSON(http.StatusOK, gin.H{"camera": camera, "restarting": true})
}

// HandleVideoFeed streams a camera as multipart MJPEG. The connection stays
// open until the viewer leaves or the service shuts down; keep-alive updates
// re-emit the newest frame so proxies do not cut an idle stream.
func (h *LookoutHandlers) HandleVideoFeed(c *gin.Context) {
	camera := c.Param("camera")
	s, err := h.registry.Subscribe(camera)
	if err != nil {
		h.abortStreamError(c, err)
		return
	}
	defer h.registry.Unsubscribe(s)

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache, no-store")
	c.Header("Connection", "close")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.logger.Error("response writer does not support flushing")
		return
	}

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case u, ok := <-s.Updates():
			if !ok {
				return
			}
			payload := framePayload(u)
			if _, err := fmt.Fprintf(c.Writer,
				"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(payload)); err != nil {
				return
			}
			if _, err := c.Writer.Write(payload); err != nil {
				return
			}
			if _, err := fmt.Fprint(c.Writer, "\r\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// framePayload picks the bytes a transport should emit for an update: the
// frame itself, or the placeholder when a keep-alive fires before any frame
// was ever retained.
func framePayload(u stream.Update) []byte {
	if u.Frame != nil {
		return u.Frame.Data
	}
	return backend.PlaceholderJPEG()
}

func (h *LookoutHandlers) abortStreamError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, stream.ErrUnknownCamera):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "unknown_camera",
			Message: err.Error(),
		})
	case errors.Is(err, stream.ErrCapacityExceeded):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "camera_busy",
			Message: err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal",
			Message: err.Error(),
		})
	}
}

// HandleNotFound provides a custom 404 handler
func (h *LookoutHandlers) HandleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "Endpoint not found",
	})
}
