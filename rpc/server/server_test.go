package server

import (
	"context"
	"encoding/json"
	"errors"
	hwtesting "github.com/ValentinKolb/hwbridge/lib/hardware/testing"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Fake transport
// --------------------------------------------------------------------------

type fakeSession struct {
	id     string
	frames chan []byte
	fail   atomic.Bool
	closed atomic.Bool
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, frames: make(chan []byte, 64)}
}

func (s *fakeSession) ID() string         { return s.id }
func (s *fakeSession) RemoteAddr() string { return "fake/" + s.id }
func (s *fakeSession) Close() error       { s.closed.Store(true); return nil }

func (s *fakeSession) Send(frame []byte) error {
	if s.fail.Load() {
		return errors.New("broken pipe")
	}
	s.frames <- frame
	return nil
}

// nextFrame waits for the next frame written to s
func (s *fakeSession) nextFrame(t *testing.T) []byte {
	t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("session %s: no response", s.id)
		return nil
	}
}

// next waits for the next response written to s
func (s *fakeSession) next(t *testing.T) *common.Response {
	t.Helper()
	var resp common.Response
	require.NoError(t, json.Unmarshal(s.nextFrame(t), &resp))
	return &resp
}

// silent asserts that s receives nothing for a while
func (s *fakeSession) silent(t *testing.T) {
	t.Helper()
	select {
	case frame := <-s.frames:
		t.Fatalf("session %s: unexpected frame %s", s.id, frame)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeTransport struct {
	handler  transport.ISessionHandler
	stopped  chan struct{}
	once     sync.Once
	mu       sync.Mutex
	sessions []*fakeSession
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{stopped: make(chan struct{})}
}

func (f *fakeTransport) RegisterHandler(handler transport.ISessionHandler) {
	f.handler = handler
}

func (f *fakeTransport) Listen(common.ServerConfig) error {
	<-f.stopped
	return nil
}

func (f *fakeTransport) Shutdown(context.Context) error {
	f.once.Do(func() {
		close(f.stopped)
		f.mu.Lock()
		defer f.mu.Unlock()
		for _, s := range f.sessions {
			_ = s.Close()
			f.handler.OnClose(s, nil)
		}
	})
	return nil
}

func (f *fakeTransport) open(id string) *fakeSession {
	s := newFakeSession(id)
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	f.handler.OnOpen(s)
	return s
}

func (f *fakeTransport) send(s *fakeSession, frame string) {
	f.handler.OnMessage(s, []byte(frame))
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

type adapterFunc func(ctx context.Context, req *common.Request) *common.Response

func (f adapterFunc) Handle(ctx context.Context, req *common.Request) *common.Response {
	return f(ctx, req)
}

func newTestServer(t *testing.T, d *hwtesting.Driver, modify ...func(*common.ServerConfig)) (*RPCServer, *fakeTransport) {
	t.Helper()
	config := common.DefaultServerConfig()
	config.LogLevel = "error"
	for _, m := range modify {
		m(&config)
	}

	tr := newFakeTransport()
	s, err := NewRPCServer(config, tr, serializer.NewJSONSerializer(), d, d.Catalog())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, tr
}

func scrape(s *RPCServer) string {
	rec := httptest.NewRecorder()
	s.metrics.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestConnectIsBroadcast(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")

	req := `{"type":"connect","board":"uno","id":7}`
	tr.send(a, req)

	for _, s := range []*fakeSession{a, b} {
		resp := s.next(t)
		assert.Equal(t, common.StatusOK, resp.Status)
		assert.JSONEq(t, req, string(resp.Req))
		assert.Nil(t, resp.Resp)
		assert.Nil(t, resp.Error)
	}
	assert.Equal(t, 1, d.Opens("uno"))
}

func TestBroadcastFramesIdentical(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")

	tr.send(b, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"echo","functionArgs":["x",1]}`)
	assert.Equal(t, string(a.nextFrame(t)), string(b.nextFrame(t)))
}

func TestRPCReusesComponent(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a := tr.open("a")

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"on"}`)
	resp := a.next(t)
	require.Equal(t, common.StatusOK, resp.Status, resp.Error)
	assert.Nil(t, resp.Resp)

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13.0],"function":"isOn"}`)
	resp = a.next(t)
	require.Equal(t, common.StatusOK, resp.Status, resp.Error)
	assert.Equal(t, true, resp.Resp)

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"calls","functionArgs":[]}`)
	resp = a.next(t)
	require.Equal(t, common.StatusOK, resp.Status, resp.Error)
	assert.Equal(t, float64(3), resp.Resp)

	// different arguments are a different component
	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[12],"function":"isOn"}`)
	resp = a.next(t)
	require.Equal(t, common.StatusOK, resp.Status, resp.Error)
	assert.Equal(t, false, resp.Resp)

	assert.Equal(t, 2, d.Constructions(hwtesting.ClassLed))
	assert.Equal(t, 1, d.Opens("uno"))
}

func TestSessionRequestsKeepOrder(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a := tr.open("a")

	tr.send(a, `{"type":"connect","board":"uno"}`)
	require.Equal(t, common.StatusOK, a.next(t).Status)

	for i := 0; i < 100; i++ {
		tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"on"}`)
		tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"off"}`)
		tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[13],"function":"isOn"}`)

		for _, fn := range []string{"on", "off", "isOn"} {
			resp := a.next(t)
			require.Equal(t, common.StatusOK, resp.Status, resp.Error)
			assert.Contains(t, string(resp.Req), `"function":"`+fn+`"`, "round %d", i)
			if fn == "isOn" {
				require.Equal(t, false, resp.Resp, "round %d", i)
			}
		}
	}
}

func TestPendingSessionDoesNotBlockOthers(t *testing.T) {
	d := hwtesting.NewDriver()
	_, tr := newTestServer(t, d, func(c *common.ServerConfig) {
		c.Delivery = common.DeliveryOrigin
	})
	a, b := tr.open("a"), tr.open("b")
	t.Cleanup(func() { d.Ready("mega") })

	tr.send(a, `{"type":"connect","board":"mega"}`)
	tr.send(a, `{"type":"connect","board":"uno","from":"a"}`)
	d.WaitOpens(t, "mega", 1)

	tr.send(b, `{"type":"connect","board":"uno","from":"b"}`)
	d.WaitOpens(t, "uno", 1)
	require.True(t, d.Ready("uno"))
	assert.Equal(t, common.StatusOK, b.next(t).Status)

	// a's second request waits behind the pending handshake
	a.silent(t)
	require.True(t, d.Ready("mega"))
	assert.Contains(t, string(a.next(t).Req), `"board":"mega"`)
	assert.Contains(t, string(a.next(t).Req), `"board":"uno"`)
}

func TestConnectFailureIsRetried(t *testing.T) {
	d := hwtesting.NewAutoDriver("uno")
	s, tr := newTestServer(t, d)
	a := tr.open("a")

	tr.send(a, `{"type":"connect","board":"uno"}`)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "BoardConnectError", resp.Error.Name)
	assert.Contains(t, resp.Error.Message, "not found")
	assert.Equal(t, 0, s.Registry().Size())

	d.SetFailing("uno", false)
	tr.send(a, `{"type":"connect","board":"uno"}`)
	resp = a.next(t)
	assert.Equal(t, common.StatusOK, resp.Status)
	assert.Equal(t, 2, d.Opens("uno"))
	assert.Equal(t, 1, s.Registry().Size())
}

func TestConcurrentConnectSharesHandshake(t *testing.T) {
	d := hwtesting.NewDriver()
	_, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")

	tr.send(a, `{"type":"connect","board":"uno","from":"a"}`)
	tr.send(b, `{"type":"connect","board":"uno","from":"b"}`)

	d.WaitOpens(t, "uno", 1)
	require.True(t, d.Ready("uno"))

	for _, s := range []*fakeSession{a, b} {
		for i := 0; i < 2; i++ {
			assert.Equal(t, common.StatusOK, s.next(t).Status)
		}
	}
	assert.Equal(t, 1, d.Opens("uno"))
}

func TestUnknownRequestType(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")

	req := `{"type":"reboot","board":"uno"}`
	tr.send(a, req)

	for _, s := range []*fakeSession{a, b} {
		resp := s.next(t)
		assert.Equal(t, common.StatusError, resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "UnknownRequestTypeError", resp.Error.Name)
		assert.JSONEq(t, req, string(resp.Req))
	}
	assert.Equal(t, 0, d.Opens("uno"))
}

func TestMalformedRequestAnsweredToOrigin(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")

	tr.send(a, `not json`)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(a.nextFrame(t), &raw))
	assert.Contains(t, raw, "req")
	assert.Nil(t, raw["req"])
	assert.Equal(t, float64(common.StatusError), raw["status"])
	assert.Equal(t, "MalformedRequestError", raw["error"].(map[string]any)["name"])

	req := `{"type":"rpc","board":"uno","function":"on"}`
	tr.send(a, req)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	assert.Equal(t, "MalformedRequestError", resp.Error.Name)
	assert.JSONEq(t, req, string(resp.Req))

	b.silent(t)
	assert.Equal(t, 0, d.Opens("uno"))
}

func TestOriginDelivery(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d, func(c *common.ServerConfig) {
		c.Delivery = common.DeliveryOrigin
	})
	a, b := tr.open("a"), tr.open("b")

	tr.send(a, `{"type":"connect","board":"uno"}`)
	assert.Equal(t, common.StatusOK, a.next(t).Status)
	b.silent(t)
}

func TestFailedSessionIsDropped(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	a, b := tr.open("a"), tr.open("b")
	b.fail.Store(true)

	tr.send(a, `{"type":"connect","board":"uno"}`)
	assert.Equal(t, common.StatusOK, a.next(t).Status)

	assert.Eventually(t, func() bool {
		return b.closed.Load() && s.Sessions() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return s.metrics.deliveryErrors.Get() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the remaining session still gets every response
	tr.send(a, `{"type":"connect","board":"uno"}`)
	assert.Equal(t, common.StatusOK, a.next(t).Status)
}

func TestRequestTimeout(t *testing.T) {
	d := hwtesting.NewDriver()
	s, tr := newTestServer(t, d)
	s.router.requestTimeout = 50 * time.Millisecond
	s.router.adapter = NewBoardServerAdapter(s.registry, 50*time.Millisecond)
	a := tr.open("a")

	tr.send(a, `{"type":"connect","board":"uno"}`)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RequestTimeoutError", resp.Error.Name)
	assert.Contains(t, resp.Error.Message, "uno")

	// the handshake itself keeps running and is reused
	d.WaitOpens(t, "uno", 1)
	require.True(t, d.Ready("uno"))
	tr.send(a, `{"type":"connect","board":"uno"}`)
	assert.Equal(t, common.StatusOK, a.next(t).Status)
	assert.Equal(t, 1, d.Opens("uno"))
}

func TestRequestTimeoutReachesMethod(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	s.router.requestTimeout = 50 * time.Millisecond
	a := tr.open("a")

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"block"}`)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "InvocationError", resp.Error.Name)
	assert.Contains(t, resp.Error.Message, "deadline exceeded")
}

func TestComponentAndInvocationErrors(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	_, tr := newTestServer(t, d, func(c *common.ServerConfig) {
		c.Components = []string{hwtesting.ClassLed, hwtesting.ClassBroken, hwtesting.ClassPanicky}
	})
	a := tr.open("a")

	tests := []struct {
		name     string
		req      string
		errName  string
		contains string
	}{
		{"construct fails", `{"type":"rpc","board":"uno","component":"Broken","function":"on"}`, "ComponentConstructError", "stub failure"},
		{"construct panics", `{"type":"rpc","board":"uno","component":"Panicky","function":"on"}`, "ComponentConstructError", "constructor exploded"},
		{"unknown class", `{"type":"rpc","board":"uno","component":"Servo","function":"on"}`, "ComponentConstructError", "Servo"},
		{"unknown method", `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"dance"}`, "InvocationError", "unknown method"},
		{"method fails", `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"fail"}`, "InvocationError", "stub failure"},
		{"method panics", `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"panic"}`, "InvocationError", "method exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr.send(a, tt.req)
			resp := a.next(t)
			assert.Equal(t, common.StatusError, resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.errName, resp.Error.Name)
			assert.Contains(t, resp.Error.Message, tt.contains)
			assert.JSONEq(t, tt.req, string(resp.Req))
		})
	}

	// the component survives a failing call
	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"calls"}`)
	resp := a.next(t)
	require.Equal(t, common.StatusOK, resp.Status, resp.Error)
	assert.Equal(t, float64(3), resp.Resp)
}

func TestAdapterPanicIsRecovered(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	s.router.adapter = adapterFunc(func(context.Context, *common.Request) *common.Response {
		panic("boom")
	})
	a := tr.open("a")

	tr.send(a, `{"type":"connect","board":"uno"}`)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Error", resp.Error.Name)
	assert.Contains(t, resp.Error.Message, "boom")
}

func TestUnencodableResult(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	s.router.adapter = adapterFunc(func(_ context.Context, req *common.Request) *common.Response {
		return common.NewSuccessResponse(req.Raw, func() {})
	})
	a := tr.open("a")

	req := `{"type":"connect","board":"uno"}`
	tr.send(a, req)
	resp := a.next(t)
	assert.Equal(t, common.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "cannot encode result")
	assert.JSONEq(t, req, string(resp.Req))
}

func TestMetrics(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	a := tr.open("a")

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"on"}`)
	require.Equal(t, common.StatusOK, a.next(t).Status)
	tr.send(a, `{"type":"reboot","board":"uno"}`)
	require.Equal(t, common.StatusError, a.next(t).Status)

	assert.Eventually(t, func() bool {
		body := scrape(s)
		return strings.Contains(body, `hwbridge_requests_total{type="rpc"} 1`) &&
			strings.Contains(body, `hwbridge_requests_total{type="unknown"} 1`) &&
			strings.Contains(body, `hwbridge_responses_total{status="200"} 1`) &&
			strings.Contains(body, `hwbridge_responses_total{status="500"} 1`)
	}, 2*time.Second, 10*time.Millisecond)

	body := scrape(s)
	assert.Contains(t, body, `hwbridge_sessions_active 1`)
	assert.Contains(t, body, `hwbridge_boards 1`)
	assert.Contains(t, body, `hwbridge_board_connect_attempts_total 1`)
	assert.Contains(t, body, `hwbridge_components_constructed_total{class="Led"} 1`)

	rec := httptest.NewRecorder()
	s.metrics.handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestShutdownClosesBoardsAndSessions(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)
	a := tr.open("a")

	tr.send(a, `{"type":"rpc","board":"uno","component":"Led","componentArgs":[1],"function":"on"}`)
	require.Equal(t, common.StatusOK, a.next(t).Status)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.True(t, a.closed.Load())
	assert.Equal(t, 0, s.Sessions())
	assert.Equal(t, 1, d.Closed("uno"))

	// requests after shutdown are dropped
	tr.send(a, `{"type":"connect","board":"uno"}`)
	a.silent(t)

	// idempotent
	require.NoError(t, s.Shutdown(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	d := hwtesting.NewAutoDriver()
	s, tr := newTestServer(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	a := tr.open("a")
	tr.send(a, `{"type":"connect","board":"uno"}`)
	require.Equal(t, common.StatusOK, a.next(t).Status)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, d.Closed("uno"))
}

func TestNewRPCServerRejectsConfig(t *testing.T) {
	d := hwtesting.NewAutoDriver()

	config := common.DefaultServerConfig()
	config.Transport = "udp"
	_, err := NewRPCServer(config, newFakeTransport(), serializer.NewJSONSerializer(), d, d.Catalog())
	assert.Error(t, err)

	config = common.DefaultServerConfig()
	config.Components = []string{"Nope"}
	_, err = NewRPCServer(config, newFakeTransport(), serializer.NewJSONSerializer(), d, d.Catalog())
	assert.ErrorContains(t, err, "Nope")
}
