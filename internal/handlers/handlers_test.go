package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameworks/lookout/internal/backend"
	"frameworks/lookout/internal/stream"
	"frameworks/lookout/pkg/logging"
)

func newTestServer(t *testing.T, cfg stream.Config) (*httptest.Server, *stream.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLogger()
	logger.SetOutput(io.Discard)

	roster := map[string]backend.Descriptor{
		"lobby": {Brand: "WEBCAM"},
	}
	reg := stream.NewRegistry(roster, cfg, logger)
	t.Cleanup(reg.Shutdown)

	h := NewLookoutHandlers(reg, logger)
	router := gin.New()
	router.GET("/", h.HandleIndex)
	router.GET("/cameras/:camera", h.HandleCameraPage)
	router.GET("/api/status", h.HandleStatus)
	router.GET("/api/cameras/:camera/status", h.HandleCameraStatus)
	router.POST("/api/cameras/:camera/restart", h.HandleRestart)
	router.GET("/api/cameras/:camera/feed", h.HandleVideoFeed)
	router.GET("/api/cameras/:camera/ws", h.HandleWSFeed)
	router.NoRoute(h.HandleNotFound)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, reg
}

func defaultTestServer(t *testing.T) (*httptest.Server, *stream.Registry) {
	return newTestServer(t, stream.Config{GracePeriod: 100 * time.Millisecond})
}

func TestHandleStatus(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "lookout", status.Service)
	require.Len(t, status.Cameras, 1)
	assert.Equal(t, "lobby", status.Cameras[0].Camera)
	assert.Equal(t, stream.StateIdle, status.Cameras[0].State)
}

func TestHandleCameraStatus(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/api/cameras/lobby/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st stream.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "lobby", st.Camera)

	resp, err = http.Get(srv.URL + "/api/cameras/nope/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleRestart(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Post(srv.URL+"/api/cameras/lobby/restart", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/cameras/nope/restart", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleVideoFeed_StreamsJPEGParts(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/api/cameras/lobby/feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	require.Equal(t, "frame", params["boundary"])

	mr := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 2; i++ {
		part, err := mr.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		require.Greater(t, len(data), 2)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2], "part must start with the JPEG SOI marker")
	}
}

func TestHandleVideoFeed_UnknownCamera(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/api/cameras/nope/feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleVideoFeed_Capacity(t *testing.T) {
	srv, reg := newTestServer(t, stream.Config{
		MaxSessions: 1,
		GracePeriod: 100 * time.Millisecond,
	})

	s, err := reg.Subscribe("lobby")
	require.NoError(t, err)
	defer reg.Unsubscribe(s)

	resp, err := http.Get(srv.URL + "/api/cameras/lobby/feed")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "camera_busy", body.Error)
}

func TestHandlePages(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), `/cameras/lobby`)

	resp, err = http.Get(srv.URL + "/cameras/lobby")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `/api/cameras/lobby/feed`)

	resp, err = http.Get(srv.URL + "/cameras/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleNotFound(t *testing.T) {
	srv, _ := defaultTestServer(t)

	resp, err := http.Get(srv.URL + "/api/bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body.Error)
}
