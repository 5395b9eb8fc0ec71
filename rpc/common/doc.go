// Package common provides the data structures shared by the bridge server,
// its transports and the client.
//
// The package focuses on:
//   - The wire protocol: Request, Response and ErrorInfo
//   - Configuration structures for client and server
//   - Custom logging integrated with the dragonboat logger facade
//   - Protocol level errors
//
// Key Components:
//
//   - Request: A decoded client request. The original bytes are kept in Raw so
//     that any correlation fields a client adds are echoed back verbatim.
//
//   - Response: {"req":...,"status":200,"resp":...} on success and
//     {"req":...,"status":500,"error":{"name":...,"message":...}} on failure.
//
//   - ServerConfig / ClientConfig: Validated with go-playground/validator and
//     pretty printed by String.
//
//   - InitLoggers: Installs the custom log format and sets the level of every
//     logger used by the bridge.
package common
