package serializer

import (
	"bytes"
	"encoding/json"
	"github.com/ValentinKolb/hwbridge/rpc/common"
)

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRPCSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRPCSerializer interface using json encoding
type jsonSerializerImpl struct {
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) DeserializeRequest(b []byte) (*common.Request, error) {
	req := &common.Request{}

	trimmed := bytes.TrimSpace(b)
	if !json.Valid(trimmed) {
		return req, &common.MalformedRequestError{Reason: "frame is not valid json"}
	}

	// keep our own copy, transports may reuse their buffers
	req.Raw = append(json.RawMessage(nil), trimmed...)

	if len(trimmed) == 0 || trimmed[0] != '{' {
		return req, &common.MalformedRequestError{Reason: "request must be a json object"}
	}
	if err := json.Unmarshal(trimmed, req); err != nil {
		return req, &common.MalformedRequestError{Reason: "unexpected field type", Err: err}
	}

	switch req.Type {
	case "":
		return req, &common.MalformedRequestError{Reason: "missing field \"type\""}
	case common.ReqTConnect, common.ReqTRPC:
	default:
		return req, &common.UnknownRequestTypeError{Type: req.Type}
	}

	if req.Board == "" {
		return req, &common.MalformedRequestError{Reason: "missing field \"board\""}
	}
	if req.Type == common.ReqTRPC {
		if req.Component == "" {
			return req, &common.MalformedRequestError{Reason: "missing field \"component\""}
		}
		if req.Function == "" {
			return req, &common.MalformedRequestError{Reason: "missing field \"function\""}
		}
	}
	return req, nil
}

func (j jsonSerializerImpl) SerializeResponse(resp *common.Response) ([]byte, error) {
	return json.Marshal(resp)
}

func (j jsonSerializerImpl) SerializeRequest(req *common.Request, extra map[string]any) ([]byte, error) {
	if len(extra) == 0 {
		return json.Marshal(req)
	}

	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	fields := make(map[string]json.RawMessage, len(extra)+6)
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, taken := fields[k]; taken {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

func (j jsonSerializerImpl) DeserializeResponse(b []byte) (*common.Response, error) {
	resp := &common.Response{}
	if err := json.Unmarshal(b, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
