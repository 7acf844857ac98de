package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/protocol"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = protocol.MaxMessageSize
)

// connection serializes writes to one websocket; gorilla allows a single
// concurrent writer.
type connection struct {
	ws         *websocket.Conn
	remoteAddr string
	writeMu    sync.Mutex
}

func (c *connection) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	logging.LogBridgeFrame(c.remoteAddr, "sent", websocket.TextMessage, data)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *connection) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// HandleWebSocketConnection serves bridge requests on an upgraded
// connection. Requests run concurrently; responses are written as they
// complete and matched by ID on the client side.
func HandleWebSocketConnection(ctx context.Context, ws *websocket.Conn, remoteAddr string, handler *protocol.Handler) error {
	logging.LogConnection(remoteAddr, "websocket_upgraded")

	c := &connection{ws: ws, remoteAddr: remoteAddr}

	ctx, cancel := context.WithCancel(ctx)
	var inflight sync.WaitGroup
	defer func() {
		cancel()
		inflight.Wait()
		_ = ws.Close()
		logging.LogConnection(remoteAddr, "websocket_closed")
	}()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.ping(); err != nil {
					logging.Debug("Ping failed",
						zap.String("remote_addr", remoteAddr),
						zap.Error(err),
					)
					return
				}
			}
		}
	}()

	messageNum := 0
	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Info("Connection closed by client",
					zap.String("remote_addr", remoteAddr),
				)
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			logging.Info("Connection closed or error reading frame",
				zap.String("remote_addr", remoteAddr),
				zap.Error(err),
			)
			return nil
		}

		messageNum++
		logging.LogBridgeFrame(remoteAddr, "received", msgType, data)

		if msgType != websocket.TextMessage {
			logging.Warn("Ignoring non-text bridge frame",
				zap.String("remote_addr", remoteAddr),
				zap.Int("message_num", messageNum),
			)
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			out := handler.HandleMessage(ctx, remoteAddr, data)
			if err := c.send(out); err != nil {
				logging.Debug("Failed to send bridge response",
					zap.String("remote_addr", remoteAddr),
					zap.Error(err),
				)
			}
		}()
	}
}
