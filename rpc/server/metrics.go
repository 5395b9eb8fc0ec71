package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
	"time"
)

// serverMetrics holds the metrics of one server. It also observes the board
// registry (implements board.IObserver).
type serverMetrics struct {
	set *metrics.Set

	boardConnectAttempts *metrics.Counter
	boardConnectFailures *metrics.Counter
	boardConnectDuration *metrics.Histogram
	requestDuration      *metrics.Histogram
	deliveryErrors       *metrics.Counter
}

func newServerMetrics(sessions func() int, boards func() int) *serverMetrics {
	set := metrics.NewSet()
	m := &serverMetrics{
		set:                  set,
		boardConnectAttempts: set.NewCounter("hwbridge_board_connect_attempts_total"),
		boardConnectFailures: set.NewCounter("hwbridge_board_connect_failures_total"),
		boardConnectDuration: set.NewHistogram("hwbridge_board_connect_duration_seconds"),
		requestDuration:      set.NewHistogram("hwbridge_request_duration_seconds"),
		deliveryErrors:       set.NewCounter("hwbridge_delivery_errors_total"),
	}
	set.NewGauge("hwbridge_sessions_active", func() float64 { return float64(sessions()) })
	set.NewGauge("hwbridge_boards", func() float64 { return float64(boards()) })
	return m
}

// request records one routed request
func (m *serverMetrics) request(reqType common.RequestType, status int, start time.Time) {
	label := "unknown"
	if reqType.Known() {
		label = string(reqType)
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`hwbridge_requests_total{type=%q}`, label)).Inc()
	m.set.GetOrCreateCounter(fmt.Sprintf(`hwbridge_responses_total{status="%d"}`, status)).Inc()
	m.requestDuration.Update(time.Since(start).Seconds())
}

// --------------------------------------------------------------------------
// Interface Methods (docu see board.IObserver)
// --------------------------------------------------------------------------

func (m *serverMetrics) BoardConnecting(string) {
	m.boardConnectAttempts.Inc()
}

func (m *serverMetrics) BoardConnected(_ string, took time.Duration) {
	m.boardConnectDuration.Update(took.Seconds())
}

func (m *serverMetrics) BoardFailed(string, error) {
	m.boardConnectFailures.Inc()
}

func (m *serverMetrics) ComponentConstructed(_ string, class string) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`hwbridge_components_constructed_total{class=%q}`, class)).Inc()
}

// --------------------------------------------------------------------------
// HTTP surface
// --------------------------------------------------------------------------

// handler serves GET /metrics in the prometheus text format and GET /healthz
func (m *serverMetrics) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// metricsServer serves the metrics handler on its own endpoint
type metricsServer struct {
	srv *http.Server
}

func startMetricsServer(endpoint string, m *serverMetrics) *metricsServer {
	ms := &metricsServer{srv: &http.Server{
		Addr:              endpoint,
		Handler:           m.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	go func() {
		Logger.Infof("Serving metrics on http://%s/metrics", endpoint)
		if err := ms.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Metrics server failed: %v", err)
		}
	}()
	return ms
}

func (ms *metricsServer) shutdown(ctx context.Context) error {
	return ms.srv.Shutdown(ctx)
}
