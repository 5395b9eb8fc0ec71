package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"time"
)

// Router turns one inbound frame into exactly one delivered response
type Router struct {
	adapter        IRPCServerAdapter
	serializer     serializer.IRPCSerializer
	broadcaster    *Broadcaster
	delivery       common.DeliveryMode
	requestTimeout time.Duration
	metrics        *serverMetrics
}

// Route decodes frame, handles the request and delivers the response.
// Malformed frames are answered to origin only; every other response follows
// the configured delivery mode.
func (r *Router) Route(ctx context.Context, origin transport.ISession, frame []byte) {
	start := time.Now()
	mode := r.delivery

	var resp *common.Response
	req, err := r.serializer.DeserializeRequest(frame)

	var malformed *common.MalformedRequestError
	switch {
	case errors.As(err, &malformed):
		Logger.Warningf("Session %s sent a malformed request: %v", origin.ID(), err)
		resp = common.NewErrorResponse(req.Raw, err)
		mode = common.DeliveryOrigin
	case err != nil:
		Logger.Warningf("Session %s: %v", origin.ID(), err)
		resp = common.NewErrorResponse(req.Raw, err)
	default:
		Logger.Debugf("Session %s: %s request for board %s", origin.ID(), req.Type, req.Board)
		resp = r.handle(ctx, req)
	}

	status := r.deliver(mode, origin, resp)
	if r.metrics != nil {
		r.metrics.request(req.Type, status, start)
	}
}

// handle runs the adapter with the request timeout applied
func (r *Router) handle(ctx context.Context, req *common.Request) (resp *common.Response) {
	if r.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.requestTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			Logger.Errorf("Recovered from panic while handling %s request: %v", req.Type, rec)
			resp = common.NewErrorResponse(req.Raw, fmt.Errorf("internal error: %v", rec))
		}
	}()

	resp = r.adapter.Handle(ctx, req)
	if resp == nil {
		resp = common.NewErrorResponse(req.Raw, errors.New("internal error: no response"))
	}
	return resp
}

// deliver encodes and sends resp and returns the status that was sent.
// A result that cannot be encoded is replaced by an error response.
func (r *Router) deliver(mode common.DeliveryMode, origin transport.ISession, resp *common.Response) int {
	frame, err := r.serializer.SerializeResponse(resp)
	if err != nil {
		Logger.Errorf("Cannot encode response: %v", err)
		resp = common.NewErrorResponse(resp.Req, fmt.Errorf("cannot encode result: %w", err))
		if frame, err = r.serializer.SerializeResponse(resp); err != nil {
			Logger.Errorf("Cannot encode error response: %v", err)
			return resp.Status
		}
	}

	n := r.broadcaster.Deliver(mode, origin, frame)
	Logger.Debugf("Response with status %d delivered to %d session(s)", resp.Status, n)
	return resp.Status
}
