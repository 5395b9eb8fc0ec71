// Package board implements the stateful core of the bridge: the pool of board
// connections, the per-board component cache and dynamic invocation of
// component operations.
//
// Key Components:
//
//   - Registry: Owns all boards. EnsureBoard is a single-flight operation: the
//     first caller for an id starts the handshake and stores the in-flight
//     attempt itself; concurrent callers wait on that same attempt. A failed
//     attempt is purged before its waiters are released, so the next request
//     for the id starts a brand-new connection.
//
//   - Board: A connected board and its component cache. EnsureComponent keys
//     components by ComponentKey(class, args) and constructs each key at most
//     once, under the cache's bucket lock.
//
//   - Component: A cached instance. Invoke looks up the operation in the
//     instance's explicit MethodSet and calls it.
//
// Errors:
//
//   - *ConnectError: the handshake reported an error, timed out or could not start
//   - *ConstructError: unknown class, rejected arguments or a failing constructor
//   - *InvocationError: unknown method (wraps ErrUnknownMethod) or a failing method
//
// Each error type has a Kind method returning its wire name.
//
// Thread Safety:
//
//	All exported methods are safe for concurrent use. Boards and components
//	live until Registry.Close.
package board
