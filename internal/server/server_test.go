package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stationlink/stationcfg/internal/protocol"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/simulator"
	"github.com/stationlink/stationcfg/internal/transport"
)

func newTestServer(t *testing.T) (*Server, *simulator.Station) {
	t.Helper()
	st := simulator.NewStation("AA", "station-a")
	srv, err := New(&Config{Version: "1.2.3"}, simulator.NewFleet(st))
	require.NoError(t, err)
	return srv, st
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New(&Config{}, nil)
	assert.Error(t, err)
}

func TestNewRejectsPartialTLS(t *testing.T) {
	_, err := New(&Config{CertPath: "cert.pem"}, transport.Func{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var h Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, protocol.Version, h.Protocol)
	assert.Equal(t, "1.2.3", h.Version)
	assert.Equal(t, "/ws", h.Path)
}

func TestWebSocketRoundTrip(t *testing.T) {
	srv, st := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	req := protocol.NewReadRequest(st.Device(), schema.LocatorFor(schema.System))
	data, err := protocol.Marshal(req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	_, reply, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := protocol.ParseResponse(reply)
	require.NoError(t, err)
	assert.Equal(t, req.ID, resp.ID)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.Payload)

	assert.Eventually(t, func() bool { return srv.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)
}

func TestServeAndShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(listener) }()

	url := "ws://" + listener.Addr().String() + "/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, _, err = websocket.DefaultDialer.Dial(url, nil)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return srv.GetActiveConnections() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
	assert.Equal(t, 0, srv.GetActiveConnections())

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
