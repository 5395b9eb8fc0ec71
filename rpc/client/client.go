package client

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
)

var Logger = logger.GetLogger("client")

const (
	// IDField is the request field used to match responses to requests.
	// The bridge echoes the whole request, so the field comes back in resp.req.
	IDField = "id"
	// eventBuffer is the number of foreign responses kept for Events
	eventBuffer = 64
)

// Client sends requests to a bridge and waits for the matching responses.
// It is safe for concurrent use.
type Client struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer

	pending *xsync.MapOf[string, chan *common.Response]
	events  chan *common.Response
	done    chan struct{}

	closeOnce sync.Once
}

// NewClient connects transport and starts reading responses.
//
// Usage:
//
//	t, _ := client.NewTransport("ws")
//	c, err := client.NewClient(config, t, serializer.NewJSONSerializer())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	on, err := c.Call(ctx, "/dev/ttyACM0", "Led", []any{13}, "isOn", nil)
func NewClient(
	config common.ClientConfig,
	clientTransport transport.IRPCClientTransport,
	requestSerializer serializer.IRPCSerializer,
) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if err := clientTransport.Connect(config); err != nil {
		return nil, err
	}

	c := &Client{
		config:     config,
		transport:  clientTransport,
		serializer: requestSerializer,
		pending:    xsync.NewMapOf[string, chan *common.Response](),
		events:     make(chan *common.Response, eventBuffer),
		done:       make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Connect makes sure the board is connected
func (c *Client) Connect(ctx context.Context, board string) error {
	resp, err := c.Do(ctx, common.NewConnectRequest(board))
	if err != nil {
		return err
	}
	return responseError(resp)
}

// Call invokes function on the component of class (constructed with
// componentArgs) on board and returns the result
func (c *Client) Call(ctx context.Context, board, class string, componentArgs []any, function string, functionArgs []any) (any, error) {
	resp, err := c.Do(ctx, common.NewRPCRequest(board, class, componentArgs, function, functionArgs))
	if err != nil {
		return nil, err
	}
	if err := responseError(resp); err != nil {
		return nil, err
	}
	return resp.Resp, nil
}

// Do sends req and waits for its response. A non-200 response is returned
// as is, not as an error. If ctx has no deadline the configured timeout applies.
func (c *Client) Do(ctx context.Context, req *common.Request) (*common.Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout())
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan *common.Response, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}

	frame, err := c.serializer.SerializeRequest(req, map[string]any{IDField: id})
	if err != nil {
		return nil, fmt.Errorf("cannot encode request: %w", err)
	}
	if err := c.transport.Send(frame); err != nil {
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%s request for board %s: %w", req.Type, req.Board, ctx.Err())
	}
}

// Events returns the responses that do not belong to a request of this
// client, e.g. broadcasts caused by other clients. Responses are dropped
// when nobody reads the channel. It is closed when the connection ends.
func (c *Client) Events() <-chan *common.Response {
	return c.events
}

// Done is closed when the connection to the bridge ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close closes the connection. Pending requests fail with ErrClosed.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// readLoop dispatches every inbound response until the transport is closed
func (c *Client) readLoop() {
	defer func() {
		close(c.done)
		c.pending.Range(func(id string, ch chan *common.Response) bool {
			if _, ok := c.pending.LoadAndDelete(id); ok {
				close(ch)
			}
			return true
		})
		close(c.events)
	}()

	for frame := range c.transport.Receive() {
		resp, err := c.serializer.DeserializeResponse(frame)
		if err != nil {
			Logger.Warningf("Dropping undecodable response: %v", err)
			continue
		}

		if id := requestID(resp.Req); id != "" {
			if ch, ok := c.pending.LoadAndDelete(id); ok {
				ch <- resp
				continue
			}
		}

		select {
		case c.events <- resp:
		default:
			Logger.Debugf("Event buffer full, dropping response with status %d", resp.Status)
		}
	}
}

// requestID extracts the correlation id from an echoed request
func requestID(req json.RawMessage) string {
	if len(req) == 0 {
		return ""
	}
	var v struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req, &v); err != nil {
		return ""
	}
	return v.ID
}

// responseError converts a non-200 response to a *ResponseError
func responseError(resp *common.Response) error {
	if resp.Ok() {
		return nil
	}
	e := &ResponseError{Status: resp.Status, Name: "Error"}
	if resp.Error != nil {
		e.Name = resp.Error.Name
		e.Message = resp.Error.Message
	}
	return e
}
