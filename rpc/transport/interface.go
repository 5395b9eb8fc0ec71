package transport

import (
	"context"
	"github.com/ValentinKolb/hwbridge/rpc/common"
)

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

// ISession is one connected client
type ISession interface {
	// ID returns the unique id of the session
	ID() string
	// RemoteAddr returns the address of the peer
	RemoteAddr() string
	// Send writes one text frame. It is safe for concurrent use.
	Send(frame []byte) error
	// Close closes the session. It is idempotent; the read loop ends afterwards
	// and OnClose is called.
	Close() error
}

// ISessionHandler receives the events of all sessions of a transport
type ISessionHandler interface {
	// OnOpen is called once for every accepted session, before its first message
	OnOpen(s ISession)
	// OnMessage is called from the read loop of s for every inbound frame, in
	// arrival order. The handler owns frame. It must not block for long,
	// the next frame is only read after it returns.
	OnMessage(s ISession, frame []byte)
	// OnClose is called exactly once after the read loop of s ended. err is nil
	// for a regular close by either side.
	OnClose(s ISession, err error)
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IRPCServerTransport is the interface for the server side of the transport layer
type IRPCServerTransport interface {
	// RegisterHandler registers the session handler. It must be called before Listen.
	RegisterHandler(handler ISessionHandler)
	// Listen accepts sessions until Shutdown is called. It returns nil after a
	// Shutdown and an error if listening failed.
	Listen(config common.ServerConfig) error
	// Shutdown stops accepting, closes every session and waits for their read
	// loops to end or ctx to expire
	Shutdown(ctx context.Context) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the client side of the transport layer
type IRPCClientTransport interface {
	// Connect opens the connection to the server
	Connect(config common.ClientConfig) error
	// Send writes one frame. It is safe for concurrent use.
	Send(frame []byte) error
	// Receive returns the inbound frames. The channel is closed when the
	// connection ends.
	Receive() <-chan []byte
	// Close closes the connection
	Close() error
}
