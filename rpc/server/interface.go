package server

import (
	"context"
	"github.com/ValentinKolb/hwbridge/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for turning a decoded request into exactly one response
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It must never return nil; failures are reported as error responses.
	// ctx is cancelled when the request times out or the server shuts down.
	Handle(ctx context.Context, req *common.Request) (resp *common.Response)
}
