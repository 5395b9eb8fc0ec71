package client

import (
	"context"
	"errors"
	"fmt"
	hwtesting "github.com/ValentinKolb/hwbridge/lib/hardware/testing"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/server"
	"github.com/ValentinKolb/hwbridge/rpc/transport/unix"
	"github.com/ValentinKolb/hwbridge/rpc/transport/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// startBridge serves a bridge backed by d over websocket and returns its endpoint
func startBridge(t *testing.T, d *hwtesting.Driver) string {
	t.Helper()
	config := common.DefaultServerConfig()
	config.LogLevel = "error"

	wst := ws.NewWSServerTransport()
	s, err := server.NewRPCServer(config, wst, serializer.NewJSONSerializer(), d, d.Catalog())
	require.NoError(t, err)

	httpSrv := httptest.NewServer(wst.Handler(config))
	t.Cleanup(httpSrv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return strings.TrimPrefix(httpSrv.URL, "http://")
}

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(common.ClientConfig{
		Transport:     "ws",
		Endpoint:      endpoint,
		TimeoutSecond: 5,
	}, ws.NewWSClientTransport(), serializer.NewJSONSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCall(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	c := newTestClient(t, startBridge(t, d))
	ctx := context.Background()

	require.NoError(t, c.Connect(ctx, "uno"))

	res, err := c.Call(ctx, "uno", hwtesting.ClassLed, []any{13}, "on", nil)
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = c.Call(ctx, "uno", hwtesting.ClassLed, []any{13}, "isOn", nil)
	require.NoError(t, err)
	assert.Equal(t, true, res)

	res, err = c.Call(ctx, "uno", hwtesting.ClassLed, []any{13}, "echo", []any{"a", 2, true})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", float64(2), true}, res)

	assert.Equal(t, 1, d.Constructions(hwtesting.ClassLed))
	assert.Equal(t, 1, d.Opens("uno"))
}

func TestResponseError(t *testing.T) {
	d := hwtesting.NewAutoDriver("bad")
	c := newTestClient(t, startBridge(t, d))
	ctx := context.Background()

	err := c.Connect(ctx, "bad")
	var respErr *ResponseError
	require.True(t, errors.As(err, &respErr), "got %v", err)
	assert.Equal(t, common.StatusError, respErr.Status)
	assert.Equal(t, "BoardConnectError", respErr.Name)
	assert.Equal(t, "BoardConnectError", respErr.Kind())

	_, err = c.Call(ctx, "uno", hwtesting.ClassLed, []any{1}, "dance", nil)
	require.True(t, errors.As(err, &respErr), "got %v", err)
	assert.Equal(t, "InvocationError", respErr.Name)
	assert.Contains(t, respErr.Message, "unknown method")
}

func TestConcurrentCallsAreMatched(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	c := newTestClient(t, startBridge(t, d))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := c.Call(ctx, "uno", hwtesting.ClassLed, []any{1}, "echo", []any{fmt.Sprintf("call-%d", i)})
			if assert.NoError(t, err) {
				assert.Equal(t, []any{fmt.Sprintf("call-%d", i)}, res)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, d.Constructions(hwtesting.ClassLed))
}

func TestForeignResponsesAreEvents(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	endpoint := startBridge(t, d)
	c1 := newTestClient(t, endpoint)
	c2 := newTestClient(t, endpoint)

	require.NoError(t, c1.Connect(context.Background(), "uno"))

	select {
	case resp := <-c2.Events():
		assert.Equal(t, common.StatusOK, resp.Status)
		assert.Contains(t, string(resp.Req), `"board":"uno"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast received")
	}
}

func TestCloseFailsPendingRequests(t *testing.T) {
	d := hwtesting.NewDriver()
	c := newTestClient(t, startBridge(t, d))
	t.Cleanup(func() { d.Ready("uno") })

	errCh := make(chan error, 1)
	go func() { errCh <- c.Connect(context.Background(), "uno") }()

	d.WaitOpens(t, "uno", 1)
	require.NoError(t, c.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending request not released")
	}

	_, err := c.Do(context.Background(), common.NewConnectRequest("uno"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestContextTimeout(t *testing.T) {
	d := hwtesting.NewDriver()
	c := newTestClient(t, startBridge(t, d))
	t.Cleanup(func() { d.Ready("uno") })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Connect(ctx, "uno")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnixEndToEnd(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	socket := filepath.Join(t.TempDir(), "bridge.sock")

	config := common.DefaultServerConfig()
	config.LogLevel = "error"
	config.Transport = "unix"
	config.Endpoint = socket

	s, err := server.NewRPCServer(config, unix.NewUnixServerTransport(), serializer.NewJSONSerializer(), d, d.Catalog())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Run(ctx) }()

	var c *Client
	require.Eventually(t, func() bool {
		tr, err := NewTransport("unix")
		require.NoError(t, err)
		c, err = NewClient(common.ClientConfig{Transport: "unix", Endpoint: socket, TimeoutSecond: 5}, tr, serializer.NewJSONSerializer())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	defer c.Close()

	res, err := c.Call(context.Background(), "uno", hwtesting.ClassLed, []any{7}, "isOn", nil)
	require.NoError(t, err)
	assert.Equal(t, false, res)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not notified about closed connection")
	}
	assert.Equal(t, 1, d.Closed("uno"))
}

func TestNewTransport(t *testing.T) {
	for _, name := range []string{"ws", "tcp", "unix"} {
		tr, err := NewTransport(name)
		assert.NoError(t, err)
		assert.NotNil(t, tr)
	}
	_, err := NewTransport("udp")
	assert.Error(t, err)
}

func TestNewClientInvalidConfig(t *testing.T) {
	_, err := NewClient(common.ClientConfig{Transport: "ws"}, ws.NewWSClientTransport(), serializer.NewJSONSerializer())
	assert.Error(t, err)
}
