package server

import (
	"context"
	"errors"
	"github.com/ValentinKolb/hwbridge/lib/board"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"time"
)

// NewBoardServerAdapter creates the adapter that executes connect and rpc
// requests against registry. requestTimeout is only used to describe timeouts.
func NewBoardServerAdapter(registry *board.Registry, requestTimeout time.Duration) IRPCServerAdapter {
	return &boardServerAdapterImpl{
		registry:       registry,
		requestTimeout: requestTimeout,
	}
}

type boardServerAdapterImpl struct {
	registry       *board.Registry
	requestTimeout time.Duration
}

func (adapter *boardServerAdapterImpl) Handle(ctx context.Context, req *common.Request) *common.Response {
	switch req.Type {
	case common.ReqTConnect:
		// received -> resolving-board -> responded
		if _, err := adapter.ensureBoard(ctx, req.Board); err != nil {
			return common.NewErrorResponse(req.Raw, err)
		}
		return common.NewSuccessResponse(req.Raw, nil)

	case common.ReqTRPC:
		// received -> resolving-board -> resolving-component -> invoking -> responded
		b, err := adapter.ensureBoard(ctx, req.Board)
		if err != nil {
			return common.NewErrorResponse(req.Raw, err)
		}
		component, err := b.EnsureComponent(req.Component, req.ComponentArgs)
		if err != nil {
			return common.NewErrorResponse(req.Raw, err)
		}
		result, err := component.Invoke(ctx, req.Function, req.FunctionArgs)
		if err != nil {
			return common.NewErrorResponse(req.Raw, err)
		}
		return common.NewSuccessResponse(req.Raw, result)

	default:
		return common.NewErrorResponse(req.Raw, &common.UnknownRequestTypeError{Type: req.Type})
	}
}

// ensureBoard resolves the board and reports an expired request as RequestTimeoutError
func (adapter *boardServerAdapterImpl) ensureBoard(ctx context.Context, id string) (*board.Board, error) {
	b, err := adapter.registry.EnsureBoard(ctx, id)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, &common.RequestTimeoutError{Board: id, After: adapter.requestTimeout}
	}
	return b, err
}
