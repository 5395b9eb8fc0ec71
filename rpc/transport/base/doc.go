// Package base implements framed stream transports independent of the
// concrete socket type. The tcp and unix packages only add a connector that
// creates the listener or dials the endpoint.
//
// Frame format:
//
//	4 bytes   payload length (uint32, big endian)
//	N bytes   payload (one json document)
//
// Frames larger than MaxFrameSize are rejected.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Protocol specific operations that allow
//     extending the base transport with different socket types.
//
//   - serverTransport: Accepts connections and runs one read loop per session.
//     Every session gets a uuid and a write mutex, so responses produced by
//     concurrent requests never interleave on the wire.
//
//   - clientTransport: A single connection whose inbound frames are delivered on
//     a channel; correlating them to requests is left to the caller.
//
// Thread Safety:
//
//	Send is safe for concurrent use on both sides. Frames returned by the read
//	loops are freshly allocated and may be retained by the handler.
package base
