package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/stationlink/stationcfg/internal/discovery"
	"github.com/stationlink/stationcfg/internal/logging"
	"github.com/stationlink/stationcfg/internal/protocol"
	"github.com/stationlink/stationcfg/internal/transport"
)

// Config holds the bridge server configuration
type Config struct {
	Host     string
	Port     int    // 0 picks a free port
	Path     string // WebSocket endpoint (default /ws)
	CertPath string // Serve wss:// when both CertPath and KeyPath are set
	KeyPath  string

	Advertise bool   // Register the bridge via mDNS
	Instance  string // mDNS instance name (default: hostname)
	Version   string // Reported in mDNS TXT records and /healthz

	// Routes registers additional HTTP routes next to the bridge endpoint
	Routes []func(r chi.Router)
}

// Server relays bridge protocol requests to a backend transport
type Server struct {
	config      *Config
	handler     *protocol.Handler
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	listener    net.Listener
	tlsConfig   *tls.Config
	advert      *discovery.Advertisement
	wg          sync.WaitGroup
	mu          sync.Mutex
	activeConns map[string]*websocket.Conn
	baseCtx     context.Context
	cancel      context.CancelFunc
}

// New creates a new Server instance serving backend
func New(config *Config, backend transport.Transport) (*Server, error) {
	if backend == nil {
		return nil, errors.New("server: backend transport is required")
	}
	cfg := *config
	if cfg.Path == "" {
		cfg.Path = discovery.DefaultPath
	}

	var tlsConfig *tls.Config
	if cfg.CertPath != "" || cfg.KeyPath != "" {
		var err error
		tlsConfig, err = NewTLSConfig(cfg.CertPath, cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		config:  &cfg,
		handler: protocol.NewHandler(backend),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		tlsConfig:   tlsConfig,
		activeConns: make(map[string]*websocket.Conn),
		baseCtx:     ctx,
		cancel:      cancel,
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s, nil
}

// Start listens on the configured address and blocks until a shutdown
// signal arrives or the listener fails
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprintf("%d", s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.tlsConfig != nil {
		listener = tls.NewListener(listener, s.tlsConfig)
		logging.Info("TLS Configuration", zap.Any("tls_info", GetTLSInfo(s.tlsConfig)))
	}

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(listener)
	}()

	select {
	case <-sigChan:
		logging.Info("Shutdown signal received, stopping bridge...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

// Serve accepts bridge connections on listener until Shutdown is called
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	logging.Info("Bridge listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.config.Path),
		zap.Bool("tls", s.tlsConfig != nil),
	)

	if s.config.Advertise {
		if err := s.advertise(listener.Addr()); err != nil {
			logging.Warn("mDNS advertisement failed, bridge is reachable by address only", zap.Error(err))
		}
	}

	err := s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) advertise(addr net.Addr) error {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("cannot advertise non-TCP address %s", addr)
	}
	instance := s.config.Instance
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to resolve hostname: %w", err)
		}
		instance = host
	}

	advert, err := discovery.Advertise(instance, tcp.Port, s.config.Version, nil)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.advert = advert
	s.mu.Unlock()
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down bridge...")

	s.mu.Lock()
	s.advert.Shutdown()
	s.advert = nil
	s.mu.Unlock()

	// Stops the listener; hijacked websocket connections are closed below
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		logging.Info("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bridge shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed gracefully")
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	logging.Sync()

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}

// Addr returns the listening address once Serve has been called
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(remoteAddr string, conn *websocket.Conn) {
	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()
}

func (s *Server) untrack(remoteAddr string) {
	s.mu.Lock()
	delete(s.activeConns, remoteAddr)
	s.mu.Unlock()
}
