package base

import (
	"bytes"
	"context"
	"encoding/binary"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"sync"
	"testing"
	"time"
)

// testConnector dials and listens on loopback tcp without any tuning
type testConnector struct{}

func (testConnector) GetName() string { return "test" }

func (testConnector) Listen(common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func (testConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

type testClientConnector struct{}

func (testClientConnector) GetName() string { return "test" }

func (testClientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// echoHandler answers every frame with the same frame
type echoHandler struct {
	mu     sync.Mutex
	ids    map[string]bool
	closed chan error
}

func newEchoHandler() *echoHandler {
	return &echoHandler{ids: make(map[string]bool), closed: make(chan error, 8)}
}

func (h *echoHandler) OnOpen(s transport.ISession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ids[s.ID()] = true
}

func (h *echoHandler) OnMessage(s transport.ISession, frame []byte) { _ = s.Send(frame) }

func (h *echoHandler) OnClose(_ transport.ISession, err error) { h.closed <- err }

// startServer serves on a loopback listener and returns the server and its address
func startServer(t *testing.T, h transport.ISessionHandler) (*serverTransport, string) {
	t.Helper()
	st := NewBaseServerTransport(testConnector{}).(*serverTransport)
	st.RegisterHandler(h)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- st.serve(listener) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = st.Shutdown(ctx)
		<-served
	})
	return st, listener.Addr().String()
}

func dial(t *testing.T, endpoint string) transport.IRPCClientTransport {
	t.Helper()
	c := NewBaseClientTransport(testClientConnector{})
	require.NoError(t, c.Connect(common.ClientConfig{Transport: "tcp", Endpoint: endpoint, TimeoutSecond: 2}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func receive(t *testing.T, c transport.IRPCClientTransport) []byte {
	t.Helper()
	select {
	case frame, ok := <-c.Receive():
		require.True(t, ok, "connection closed")
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
		return nil
	}
}

func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	payloads := [][]byte{[]byte(`{"type":"connect","board":"uno"}`), {}, bytes.Repeat([]byte("x"), 70000)}
	go func() {
		for _, p := range payloads {
			_ = writeFrame(client, p)
		}
	}()

	for _, want := range payloads {
		got, err := readFrame(server)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, headerSize)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)
	buf.Write(header)

	_, err := readFrame(&buf)
	assert.ErrorContains(t, err, "exceeds limit")
}

func TestEchoAndSessions(t *testing.T) {
	h := newEchoHandler()
	_, addr := startServer(t, h)

	a := dial(t, addr)
	b := dial(t, addr)
	require.NoError(t, a.Send([]byte("one")))
	require.NoError(t, b.Send([]byte("two")))
	assert.Equal(t, "one", string(receive(t, a)))
	assert.Equal(t, "two", string(receive(t, b)))

	h.mu.Lock()
	assert.Len(t, h.ids, 2)
	h.mu.Unlock()

	// concurrent sends never interleave
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Send(bytes.Repeat([]byte("z"), 4096)))
		}()
	}
	wg.Wait()
	for i := 0; i < 10; i++ {
		assert.Len(t, receive(t, a), 4096)
	}

	require.NoError(t, b.Close())
	select {
	case err := <-h.closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestShutdown(t *testing.T) {
	h := newEchoHandler()
	st, addr := startServer(t, h)

	c := dial(t, addr)
	require.NoError(t, c.Send([]byte("hi")))
	receive(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, st.Shutdown(ctx))

	select {
	case _, ok := <-c.Receive():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("client not disconnected")
	}
	assert.Equal(t, 0, st.sessions.Size())

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}

func TestListenWithoutHandler(t *testing.T) {
	st := NewBaseServerTransport(testConnector{})
	err := st.Listen(common.DefaultServerConfig())
	assert.ErrorContains(t, err, "no session handler")
}

func TestClientNotConnected(t *testing.T) {
	c := NewBaseClientTransport(testClientConnector{})
	assert.Error(t, c.Send([]byte("x")))
	assert.Error(t, c.Connect(common.ClientConfig{}))
	assert.NoError(t, c.Close())
}
