package serializer

import "github.com/ValentinKolb/hwbridge/rpc/common"

// IRPCSerializer converts between wire frames and protocol structures
type IRPCSerializer interface {
	// DeserializeRequest decodes and checks an inbound request frame.
	// The returned request is never nil: if the frame was valid json, Raw holds
	// it even when an error is returned, so that the error can echo it.
	// The error is a *common.MalformedRequestError or a *common.UnknownRequestTypeError.
	DeserializeRequest(b []byte) (*common.Request, error)
	// SerializeResponse encodes a response frame
	SerializeResponse(resp *common.Response) ([]byte, error)
	// SerializeRequest encodes a request frame. extra adds fields that are not
	// part of the protocol (e.g. a correlation id); protocol fields take precedence.
	SerializeRequest(req *common.Request, extra map[string]any) ([]byte, error)
	// DeserializeResponse decodes a response frame
	DeserializeResponse(b []byte) (*common.Response, error)
}
