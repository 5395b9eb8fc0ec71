// Package tcp implements the framed transport over TCP sockets. It provides
// the connectors for package base; framing, sessions and read loops live there.
//
// Accepted and dialed connections have TCP_NODELAY and keep-alive enabled.
package tcp
