package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"io"
	"net"
	"sync"
	"time"
)

// receiveBuffer is the number of inbound frames buffered per client
const receiveBuffer = 64

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Client Transport
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
	config    common.ClientConfig
	conn      net.Conn
	writeMu   sync.Mutex
	frames    chan []byte
	closeOnce sync.Once
}

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if config.Endpoint == "" {
		return fmt.Errorf("no endpoint provided")
	}
	if t.conn != nil {
		return fmt.Errorf("already connected to %s", t.config.Endpoint)
	}
	t.config = config

	conn, err := t.connector.Connect(config.Endpoint, config.Timeout())
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", config.Endpoint, err)
	}
	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to upgrade connection to %s: %v", config.Endpoint, err)
	}

	t.conn = conn
	t.frames = make(chan []byte, receiveBuffer)
	go t.readFrames()

	Logger.Infof("Connected to %s using %s transport", config.Endpoint, t.connector.GetName())
	return nil
}

func (t *clientTransport) Send(frame []byte) error {
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.config.TimeoutSecond > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.config.Timeout())); err != nil {
			return err
		}
	}
	return writeFrame(t.conn, frame)
}

func (t *clientTransport) Receive() <-chan []byte {
	return t.frames
}

func (t *clientTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.conn != nil {
			err = t.conn.Close()
		}
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readFrames reads frames until the connection ends and publishes them on t.frames
func (t *clientTransport) readFrames() {
	defer close(t.frames)
	for {
		frame, err := readFrame(t.conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				Logger.Warningf("Connection to %s lost: %v", t.config.Endpoint, err)
			}
			return
		}
		t.frames <- frame
	}
}
