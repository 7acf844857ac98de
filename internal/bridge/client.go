package bridge

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/protocol"
	"github.com/stationlink/stationcfg/internal/schema"
	"github.com/stationlink/stationcfg/internal/transport"
)

// ErrClosed is returned for requests on a client whose connection has ended.
var ErrClosed = errors.New("bridge connection closed")

const (
	// DefaultTimeout bounds a request whose context has no deadline
	DefaultTimeout = 10 * time.Second

	writeWait = 10 * time.Second
)

// Client is a transport backed by a remote bridge. It implements
// transport.Transport, transport.Scanner and transport.AttributeLister and
// is safe for concurrent use.
type Client struct {
	url     string
	conn    *websocket.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[uint32]chan *protocol.Response
	err     error

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*options)

type options struct {
	timeout   time.Duration
	tlsConfig *tls.Config
}

// WithTimeout sets the per-request timeout used when the caller's context
// carries no deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTLSConfig sets the TLS configuration for wss:// URLs.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

// Dial connects to the bridge at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	dialer := *websocket.DefaultDialer
	dialer.TLSClientConfig = o.tlsConfig

	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bridge %s: %w", url, err)
	}
	conn.SetReadLimit(protocol.MaxMessageSize)

	c := &Client{
		url:     url,
		conn:    conn,
		timeout: o.timeout,
		pending: make(map[uint32]chan *protocol.Response),
		closed:  make(chan struct{}),
	}
	go c.readLoop()

	logging.LogConnection(url, "bridge_connected")
	return c, nil
}

// URL returns the bridge URL.
func (c *Client) URL() string {
	return c.url
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Close sends a close frame and tears the connection down. Pending
// requests fail with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.shutdown(ErrClosed)
	return err
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = reason
		c.mu.Unlock()
		close(c.closed)
		logging.LogConnection(c.url, "bridge_disconnected")
	})
}

func (c *Client) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		logging.LogBridgeFrame(c.url, "received", msgType, data)

		resp, err := protocol.ParseResponse(data)
		if err != nil {
			logging.Warn("Discarding bridge frame", zap.String("url", c.url), zap.Error(err))
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()
		if !ok {
			logging.Debug("Response for unknown request", zap.Uint32("id", resp.ID))
			continue
		}
		ch <- resp
	}
}

func (c *Client) closedErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Errorf("%w: %w", c.err, transport.ErrNotConnected)
}

// roundTrip sends req and waits for its response.
func (c *Client) roundTrip(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if deadline, ok := ctx.Deadline(); ok && req.TimeoutMs == 0 {
		if remaining := time.Until(deadline).Milliseconds(); remaining > 0 {
			req.TimeoutMs = remaining
		}
	}

	data, err := protocol.Marshal(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *protocol.Response, 1)
	c.mu.Lock()
	if reason := c.err; reason != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", reason, transport.ErrNotConnected)
	}
	c.pending[req.ID] = ch
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	logging.LogBridgeFrame(c.url, "sent", websocket.TextMessage, data)
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return nil, fmt.Errorf("failed to send %s request: %w", req.Op, err)
	}

	select {
	case resp := <-ch:
		if err := resp.Err(); err != nil {
			return nil, err
		}
		return resp, nil
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-c.closed:
		forget()
		return nil, c.closedErr()
	}
}

// Scan implements transport.Scanner.
func (c *Client) Scan(ctx context.Context, timeout time.Duration) ([]transport.Device, error) {
	if _, ok := ctx.Deadline(); !ok {
		// Leave room for the bridge to answer after its scan window.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout+c.timeout)
		defer cancel()
	}
	resp, err := c.roundTrip(ctx, protocol.NewScanRequest(timeout))
	if err != nil {
		return nil, err
	}
	return resp.Devices, nil
}

// Enumerate implements transport.Transport.
func (c *Client) Enumerate(ctx context.Context, dev transport.Device) error {
	_, err := c.roundTrip(ctx, protocol.NewEnumerateRequest(dev))
	return err
}

// Attributes implements transport.AttributeLister.
func (c *Client) Attributes(ctx context.Context, dev transport.Device) ([]schema.Locator, error) {
	resp, err := c.roundTrip(ctx, protocol.NewAttributesRequest(dev))
	if err != nil {
		return nil, err
	}
	locs := make([]schema.Locator, 0, len(resp.Attributes))
	for _, s := range resp.Attributes {
		loc, err := schema.ParseLocator(s)
		if err != nil {
			return nil, fmt.Errorf("bridge reported %w", err)
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

// ReadAttribute implements transport.Transport.
func (c *Client) ReadAttribute(ctx context.Context, dev transport.Device, loc schema.Locator) ([]byte, error) {
	resp, err := c.roundTrip(ctx, protocol.NewReadRequest(dev, loc))
	if err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// WriteAttribute implements transport.Transport.
func (c *Client) WriteAttribute(ctx context.Context, dev transport.Device, loc schema.Locator, payload []byte) error {
	_, err := c.roundTrip(ctx, protocol.NewWriteRequest(dev, loc, payload))
	return err
}
