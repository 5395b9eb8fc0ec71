// Package transport defines the interfaces between the bridge and its network
// transports. A transport only moves text frames: it accepts duplex
// connections, hands every inbound frame to a handler and writes frames back.
// It knows nothing about requests or boards.
//
// Key Components:
//
//   - ISession: One connected client. Send is safe for concurrent use.
//
//   - ISessionHandler: Receives OnOpen, OnMessage and OnClose for every session.
//
//   - IRPCServerTransport: Server side (ws, tcp, unix).
//
//   - IRPCClientTransport: Client side of the same transports.
//
// Implementations:
//
//   - ws: WebSocket text frames (gorilla/websocket behind a chi router)
//   - tcp, unix: length prefixed frames over a stream socket (see package base)
package transport
