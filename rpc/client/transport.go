package client

import (
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/ValentinKolb/hwbridge/rpc/transport/tcp"
	"github.com/ValentinKolb/hwbridge/rpc/transport/unix"
	"github.com/ValentinKolb/hwbridge/rpc/transport/ws"
)

// NewTransport returns the client transport with the given name (ws, tcp or unix)
func NewTransport(name string) (transport.IRPCClientTransport, error) {
	switch name {
	case "ws":
		return ws.NewWSClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q, must be one of ws, tcp, unix", name)
	}
}
