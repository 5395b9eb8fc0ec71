// Package unix implements the framed transport over Unix domain sockets, for
// clients running on the same machine as the bridge. It provides the
// connectors for package base.
//
// The endpoint is the socket path. A stale socket file is removed on Listen.
package unix
