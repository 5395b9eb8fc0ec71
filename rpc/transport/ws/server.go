package ws

import (
	"context"
	"errors"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	// MaxFrameSize is the largest inbound message accepted from a client
	MaxFrameSize = 16 * 1024 * 1024
	// closeGracePeriod bounds the close handshake written by Session.Close
	closeGracePeriod = time.Second
)

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// session is one websocket connection
type session struct {
	id           string
	remoteAddr   string
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closed       atomic.Bool
	done         chan struct{}
}

func newSession(conn *websocket.Conn, remoteAddr string, writeTimeout time.Duration) *session {
	return &session{
		id:           uuid.NewString(),
		remoteAddr:   remoteAddr,
		conn:         conn,
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISession)
// --------------------------------------------------------------------------

func (s *session) ID() string {
	return s.id
}

func (s *session) RemoteAddr() string {
	return s.remoteAddr
}

func (s *session) Send(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return net.ErrClosed
	}
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod),
		)
		err = s.conn.Close()
	})
	return err
}

// keepAlive pings the peer every interval until the session is closed.
// WriteControl may be called concurrently with Send.
func (s *session) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(interval)); err != nil {
				Logger.Debugf("Ping to session %s failed: %v", s.id, err)
				_ = s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerTransport serves websocket sessions on a chi router
type ServerTransport struct {
	handler  transport.ISessionHandler
	upgrader websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	stopping atomic.Bool
	sessions *xsync.MapOf[string, *session]
	wg       sync.WaitGroup
}

// NewWSServerTransport creates a new websocket server transport
func NewWSServerTransport() *ServerTransport {
	return &ServerTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// clients are not authenticated, any origin may connect
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		sessions: xsync.NewMapOf[string, *session](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *ServerTransport) RegisterHandler(handler transport.ISessionHandler) {
	t.handler = handler
}

func (t *ServerTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return errors.New("no session handler registered")
	}

	srv := &http.Server{
		Addr:              config.Endpoint,
		Handler:           t.Handler(config),
		ReadHeaderTimeout: 10 * time.Second,
	}

	t.mu.Lock()
	if t.stopping.Load() {
		t.mu.Unlock()
		return nil
	}
	t.server = srv
	t.mu.Unlock()

	Logger.Infof("Starting ws server on ws://%s%s", config.Endpoint, config.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (t *ServerTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.stopping.Store(true)
	srv := t.server
	t.mu.Unlock()

	var err error
	if srv != nil {
		err = srv.Shutdown(ctx)
	}

	// hijacked connections are not tracked by http.Server
	t.sessions.Range(func(_ string, s *session) bool {
		_ = s.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handler returns the http handler serving the websocket endpoint at
// config.Path and a health check at /healthz
func (t *ServerTransport) Handler(config common.ServerConfig) http.Handler {
	path := config.Path
	if path == "" {
		path = "/"
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get(path, func(w http.ResponseWriter, r *http.Request) {
		t.handleUpgrade(w, r, config)
	})
	return r
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleUpgrade upgrades the request and runs the read loop of the new session
func (t *ServerTransport) handleUpgrade(w http.ResponseWriter, r *http.Request, config common.ServerConfig) {
	t.mu.Lock()
	if t.stopping.Load() {
		t.mu.Unlock()
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	t.wg.Add(1)
	t.mu.Unlock()
	defer t.wg.Done()

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already replied with an http error
		Logger.Warningf("Upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	s := newSession(conn, r.RemoteAddr, time.Duration(config.TimeoutSecond)*time.Second)
	t.sessions.Store(s.id, s)
	defer t.sessions.Delete(s.id)

	if t.stopping.Load() {
		_ = s.Close()
	}

	conn.SetReadLimit(MaxFrameSize)
	if config.KeepAliveSecond > 0 {
		interval := time.Duration(config.KeepAliveSecond) * time.Second
		_ = conn.SetReadDeadline(time.Now().Add(2 * interval))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * interval))
		})
		go s.keepAlive(interval)
	}

	Logger.Debugf("Session %s opened from %s", s.id, s.remoteAddr)
	t.handler.OnOpen(s)

	var readErr error
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				readErr = err
			}
			break
		}
		t.handler.OnMessage(s, frame)
	}

	_ = s.Close()
	if readErr != nil {
		Logger.Warningf("Session %s closed: %v", s.id, readErr)
	} else {
		Logger.Debugf("Session %s closed", s.id)
	}
	t.handler.OnClose(s, readErr)
}
