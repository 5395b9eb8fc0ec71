// Package client implements a Go client for the hardware bridge.
//
// The bridge answers every request with a response that echoes the request,
// and by default writes that response to every connected session. The client
// therefore tags each request with a unique "id" field and matches responses
// by the id found in resp.req. Responses that belong to other sessions are
// available through Events.
//
// Usage Example:
//
//	t, err := client.NewTransport("ws")
//	if err != nil {
//		return err
//	}
//	c, err := client.NewClient(common.ClientConfig{
//		Transport:     "ws",
//		Endpoint:      "localhost:3074",
//		TimeoutSecond: 5,
//	}, t, serializer.NewJSONSerializer())
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	if err := c.Connect(ctx, "/dev/ttyACM0"); err != nil {
//		return err
//	}
//	_, err = c.Call(ctx, "/dev/ttyACM0", "Led", []any{13}, "on", nil)
//
// Errors reported by the bridge are returned as *ResponseError; its Name is
// the error name sent by the bridge (e.g. "BoardConnectError").
//
// Thread Safety:
//
//	A Client can be used concurrently from multiple goroutines.
package client
