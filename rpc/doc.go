// Package rpc is the communication layer of the hardware bridge. Clients send
// JSON requests over a transport, the server executes them against the board
// registry and answers with JSON responses.
//
// The package is organized into several subpackages:
//
//   - common: Wire protocol types (Request, Response, ErrorInfo), the server
//     and client configuration, the request error types and logging setup.
//
//   - transport: Session based transport abstractions with pluggable
//     implementations (WebSocket, TCP, Unix sockets).
//
//   - serializer: Decoding of request frames and encoding of response frames.
//
//   - server: The request router, the broadcaster that delivers responses to
//     the connected sessions, metrics and the server composition root.
//
//   - client: A Go client that correlates requests and broadcast responses.
package rpc
