package handlers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleWSFeed_DeliversBinaryFrames(t *testing.T) {
	srv, _ := defaultTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cameras/lobby/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i := 0; i < 2; i++ {
		msgType, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, msgType)
		require.Greater(t, len(data), 2)
		assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])
	}
}

func TestHandleWSFeed_UnknownCamera(t *testing.T) {
	srv, _ := defaultTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cameras/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleWSFeed_SessionReleasedOnDisconnect(t *testing.T) {
	srv, reg := defaultTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/cameras/lobby/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.NoError(t, err)
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := reg.StatusFor("lobby")
		require.NoError(t, err)
		if st.Sessions == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("session not released after websocket disconnect")
}
