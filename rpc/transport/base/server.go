package base

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Session
// -----------------------------------------------------------

// session is one framed connection
type session struct {
	id           string
	conn         net.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	closeOnce    sync.Once
	closed       atomic.Bool
}

func newSession(conn net.Conn, writeTimeout time.Duration) *session {
	return &session{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISession)
// --------------------------------------------------------------------------

func (s *session) ID() string {
	return s.id
}

func (s *session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
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
	return writeFrame(s.conn, frame)
}

func (s *session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.conn.Close()
	})
	return err
}

// -----------------------------------------------------------
// Server Transport
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ISessionHandler
	config    common.ServerConfig

	mu       sync.Mutex
	listener net.Listener
	stopping atomic.Bool
	sessions *xsync.MapOf[string, *session]
	wg       sync.WaitGroup
}

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		sessions:  xsync.NewMapOf[string, *session](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ISessionHandler) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())
	return t.serve(listener)
}

func (t *serverTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.stopping.Store(true)
	if t.listener != nil {
		_ = t.listener.Close()
	}
	t.mu.Unlock()

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
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serve accepts connections on listener until Shutdown
func (t *serverTransport) serve(listener net.Listener) error {
	if t.handler == nil {
		_ = listener.Close()
		return errors.New("no session handler registered")
	}

	t.mu.Lock()
	if t.stopping.Load() {
		// Shutdown ran before the listener was known
		t.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	t.listener = listener
	t.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.stopping.Load() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				Logger.Warningf("Accept error: %v", err)
				continue
			}
			return fmt.Errorf("accept failed: %v", err)
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		t.mu.Lock()
		if t.stopping.Load() {
			t.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		t.wg.Add(1)
		t.mu.Unlock()

		go t.handleConnection(conn)
	}
}

// handleConnection runs the read loop of one session
func (t *serverTransport) handleConnection(conn net.Conn) {
	defer t.wg.Done()

	s := newSession(conn, time.Duration(t.config.TimeoutSecond)*time.Second)
	t.sessions.Store(s.id, s)
	defer t.sessions.Delete(s.id)

	// a connection accepted during Shutdown is closed right away
	if t.stopping.Load() {
		_ = s.Close()
	}

	Logger.Debugf("Session %s opened from %s", s.id, s.RemoteAddr())
	t.handler.OnOpen(s)

	var readErr error
	for {
		frame, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() && !errors.Is(err, net.ErrClosed) {
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
