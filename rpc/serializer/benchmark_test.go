package serializer

import (
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"testing"
)

// benchmarkFrames returns request frames of different shapes
func benchmarkFrames() map[string][]byte {
	return map[string][]byte{
		"Connect":  []byte(`{"type":"connect","board":"uno","id":"7f9c"}`),
		"RPC":      []byte(`{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"on","functionArgs":[],"id":"7f9c"}`),
		"RPCLarge": []byte(`{"type":"rpc","board":"uno","component":"Sensor","componentArgs":[{"pin":"A0","freq":25,"threshold":2}],"function":"scale","functionArgs":[0,100],"id":"7f9c","meta":{"user":"bench","tags":["a","b","c"]}}`),
	}
}

// BenchmarkDeserializeRequest benchmarks request decoding for various frames
func BenchmarkDeserializeRequest(b *testing.B) {
	s := NewJSONSerializer()
	for name, frame := range benchmarkFrames() {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.DeserializeRequest(frame); err != nil {
					b.Fatalf("Failed to deserialize: %v", err)
				}
			}
		})
	}
}

// BenchmarkSerializeResponse benchmarks response encoding for various results
func BenchmarkSerializeResponse(b *testing.B) {
	s := NewJSONSerializer()
	frames := benchmarkFrames()
	responses := map[string]*common.Response{
		"Empty":  common.NewSuccessResponse(frames["Connect"], nil),
		"Scalar": common.NewSuccessResponse(frames["RPC"], 512.5),
		"Error":  common.NewErrorResponse(frames["RPCLarge"], &common.UnknownRequestTypeError{Type: "x"}),
	}

	for name, resp := range responses {
		b.Run(name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := s.SerializeResponse(resp); err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
			}
		})
	}
}
