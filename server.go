package wsipc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rsms/wsipc/js"
)

const shutdownTimeout = 5 * time.Second

// WebSocketServer is the host side Transport. It accepts websocket connections from
// renderer processes and tracks their room membership.
type WebSocketServer struct {
	// Function to be invoked just after a new connection has been accepted. It is called in
	// the connection's read goroutine, meaning no messages will be received on the connection
	// until this function returns.
	AcceptHandler func(*Sock)

	// Function to be invoked after a connection closed
	CloseHandler func(*Sock)

	addr    string
	path    string
	limits  Limits
	metrics bool

	mu        sync.Mutex
	onMessage MessageHandler
	listener  net.Listener // bound by Listen, consumed by Serve
	boundAddr string
	serving   bool

	routesMu sync.Mutex
	routes   map[string]http.Handler

	socksMu sync.RWMutex
	socks   map[*Sock]struct{}
	closing bool
	conns   sync.WaitGroup
}

// NewWebSocketServer creates a server for `cfg.Addr` with the endpoint mounted at `cfg.Path`.
// Nothing is bound until Listen or Serve.
func NewWebSocketServer(cfg Config) *WebSocketServer {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	return &WebSocketServer{
		addr:    cfg.Addr,
		path:    cfg.Path,
		limits:  cfg.Limits,
		metrics: cfg.Metrics,
		socks:   make(map[*Sock]struct{}),
		routes:  make(map[string]http.Handler),
	}
}

// Handle serves `handler` at `pattern` next to the websocket endpoint, e.g. the renderer's
// static files. Routes added while serving take effect on the next Serve.
//
// The endpoint path, <path>ipc.js and, with metrics enabled, /metrics are reserved; Handle
// panics if `pattern` is one of them, like http.ServeMux does for duplicate patterns.
func (s *WebSocketServer) Handle(pattern string, handler http.Handler) {
	for _, reserved := range s.reservedPatterns() {
		if pattern == reserved {
			panic("wsipc: pattern " + pattern + " is reserved by the websocket server")
		}
	}
	s.routesMu.Lock()
	defer s.routesMu.Unlock()
	s.routes[pattern] = handler
}

// Listen binds the server's address. Calling it before Serve makes Addr return the actual
// address, which is useful with port 0.
func (s *WebSocketServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	return s.listenLocked()
}

func (s *WebSocketServer) listenLocked() error {
	addr := s.addr
	if s.boundAddr != "" {
		addr = s.boundAddr
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = l
	s.boundAddr = l.Addr().String()
	return nil
}

// Address this server is listening at, or the configured address before it is bound
func (s *WebSocketServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boundAddr != "" {
		return s.boundAddr
	}
	return s.addr
}

// URL returns the websocket URL clients connect to
func (s *WebSocketServer) URL() string {
	return "ws://" + s.Addr() + s.path
}

func (s *WebSocketServer) OnMessage(fn MessageHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Handler returns the HTTP handler serving the websocket endpoint, the browser client at
// <path>ipc.js and, if enabled, metrics at /metrics. Serve uses it; it is exported for
// mounting the endpoint on an existing HTTP server.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.routesMu.Lock()
	for pattern, handler := range s.routes {
		mux.Handle(pattern, handler)
	}
	s.routesMu.Unlock()
	mux.Handle(s.path, s.websocketHandler())
	mux.Handle(s.path+"ipc.js", js.Handler())
	if s.metrics {
		mux.Handle(metricsPattern, MetricsHandler())
	}
	return mux
}

const metricsPattern = "/metrics"

func (s *WebSocketServer) reservedPatterns() []string {
	patterns := []string{s.path, s.path + "ipc.js"}
	if s.metrics {
		patterns = append(patterns, metricsPattern)
	}
	return patterns
}

// Serve accepts connections until `ctx` is done. It then stops listening, closes every
// connection and waits for their goroutines to finish.
func (s *WebSocketServer) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.serving {
		s.mu.Unlock()
		return errAlreadyServing
	}
	if s.listener == nil {
		if err := s.listenLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	l := s.listener
	s.listener = nil
	s.serving = true
	s.mu.Unlock()

	s.socksMu.Lock()
	s.closing = false
	s.socksMu.Unlock()

	hs := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		errc <- hs.Serve(l)
	}()
	Logger().Info().Str("url", s.URL()).Msg("websocket server listening")

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		err = hs.Shutdown(sctx)
		cancel()
		<-errc
	}

	s.closeAll()
	s.conns.Wait()

	s.mu.Lock()
	s.serving = false
	s.mu.Unlock()

	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// Send writes `e` to every connection in `room`, or to every connection if `room` is empty.
// Connections which fail to receive are closed.
func (s *WebSocketServer) Send(room string, e *Envelope) error {
	for _, sock := range s.Socks() {
		if room != "" && !sock.InRoom(room) {
			continue
		}
		if err := sock.Send(e); err != nil {
			Logger().Warn().Err(err).Str("sock", sock.ID()).Msg("send failed; closing connection")
			sock.Close()
		}
	}
	return nil
}

// Socks returns the currently open connections
func (s *WebSocketServer) Socks() []*Sock {
	s.socksMu.RLock()
	defer s.socksMu.RUnlock()
	socks := make([]*Sock, 0, len(s.socks))
	for sock := range s.socks {
		socks = append(socks, sock)
	}
	return socks
}

// addSock registers an accepted connection. Returns false if the server is shutting down.
func (s *WebSocketServer) addSock(sock *Sock) bool {
	s.socksMu.Lock()
	defer s.socksMu.Unlock()
	if s.closing {
		return false
	}
	s.socks[sock] = struct{}{}
	s.conns.Add(1)
	connectionsGauge.WithLabelValues(s.addr).Inc()
	return true
}

func (s *WebSocketServer) removeSock(sock *Sock) {
	s.socksMu.Lock()
	_, ok := s.socks[sock]
	delete(s.socks, sock)
	s.socksMu.Unlock()
	if !ok {
		return
	}
	connectionsGauge.WithLabelValues(s.addr).Dec()
	if s.CloseHandler != nil {
		s.CloseHandler(sock)
	}
	s.conns.Done()
}

func (s *WebSocketServer) closeAll() {
	s.socksMu.Lock()
	s.closing = true
	socks := make([]*Sock, 0, len(s.socks))
	for sock := range s.socks {
		socks = append(socks, sock)
	}
	s.socksMu.Unlock()
	for _, sock := range socks {
		sock.Close()
	}
}
