// Package serializer converts between wire frames and the protocol structures
// of package common.
//
// The wire format is JSON text: one request or response per frame. Decoding a
// request also validates its shape, so the server only ever routes requests
// that carry a known type and every field that type needs.
//
// Key Components:
//
//   - IRPCSerializer: Interface used by the server and the client.
//
//   - jsonSerializerImpl: The JSON implementation. DeserializeRequest keeps the
//     original frame in Request.Raw so that correlation fields added by a client
//     are echoed back verbatim in the response.
//
// Thread Safety:
//
//	The implementation is stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	req, err := s.DeserializeRequest(frame)
//	if err != nil {
//	    // err is a *common.MalformedRequestError or *common.UnknownRequestTypeError,
//	    // req.Raw holds the frame if it was valid json
//	}
package serializer
