// Package ws implements the websocket transport, the default transport of the
// bridge. Every request and response is one text message.
//
// The server mounts the websocket endpoint at ServerConfig.Path on a chi
// router, next to GET /healthz. Handler exposes the router so the transport can
// be served by httptest or mounted into another router.
//
// Keep-alive: with KeepAliveSecond > 0 the server pings every session at that
// interval and drops a session that has not answered for two intervals.
package ws
