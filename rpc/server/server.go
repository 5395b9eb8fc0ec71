package server

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/board"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/serializer"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"strings"
	"sync"
	"time"
)

var Logger = logger.GetLogger("rpc")

// ShutdownTimeout bounds the graceful shutdown performed by Run
const ShutdownTimeout = 10 * time.Second

// RPCServer is the composition root of the bridge. It owns the board registry,
// the live sessions and the router, and wires them to a transport.
type RPCServer struct {
	config      common.ServerConfig
	transport   transport.IRPCServerTransport
	registry    *board.Registry
	broadcaster *Broadcaster
	router      *Router
	metrics     *serverMetrics
	metricsSrv  *metricsServer

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	stopping     bool
	inflight     sync.WaitGroup
	shutdownOnce sync.Once
	shutdownErr  error
}

// NewRPCServer creates a new RPC server
// It takes a config, transport, serializer and the hardware library as parameters.
// Only the classes listed in config.Components (all if empty) can be constructed.
//
// Usage:
//
//	s, err := server.NewRPCServer(
//		config,
//		ws.NewWSServerTransport(),
//		serializer.NewJSONSerializer(),
//		sim.NewDriver(sim.Config{}),
//		sim.NewCatalog(),
//	)
//	if err != nil {
//		return err
//	}
//	return s.Run(ctx)
func NewRPCServer(
	config common.ServerConfig,
	serverTransport transport.IRPCServerTransport,
	requestSerializer serializer.IRPCSerializer,
	driver hardware.Driver,
	catalog *hardware.Catalog,
) (*RPCServer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	if err := common.InitLoggers(config.LogLevel); err != nil {
		return nil, err
	}

	allowed, err := catalog.Restrict(config.Components)
	if err != nil {
		return nil, fmt.Errorf("invalid component allow-list: %w", err)
	}

	s := &RPCServer{
		config:      config,
		transport:   serverTransport,
		broadcaster: NewBroadcaster(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.metrics = newServerMetrics(s.broadcaster.Size, func() int { return s.registry.Size() })
	s.broadcaster.onDeliveryError = func(transport.ISession, error) { s.metrics.deliveryErrors.Inc() }

	s.registry = board.NewRegistry(driver, allowed, board.Options{
		ConnectTimeout: config.ConnectTimeout(),
		Observer:       s.metrics,
	})

	s.router = &Router{
		adapter:        NewBoardServerAdapter(s.registry, config.RequestTimeout()),
		serializer:     requestSerializer,
		broadcaster:    s.broadcaster,
		delivery:       config.Delivery,
		requestTimeout: config.RequestTimeout(),
		metrics:        s.metrics,
	}

	serverTransport.RegisterHandler(newSessionListener(s))

	Logger.Infof("Created RPC Server using %s driver", driver.Name())
	Logger.Infof("Component classes: %s", strings.Join(allowed.Classes(), ", "))
	Logger.Infof(config.String())

	return s, nil
}

// Registry returns the board registry of the server
func (s *RPCServer) Registry() *board.Registry {
	return s.registry
}

// Sessions returns the number of connected sessions
func (s *RPCServer) Sessions() int {
	return s.broadcaster.Size()
}

// Serve starts the metrics endpoint (if configured) and the transport layer.
// It blocks until Shutdown is called or the transport fails.
func (s *RPCServer) Serve() error {
	if s.config.MetricsEndpoint != "" {
		s.mu.Lock()
		if s.metricsSrv == nil && !s.stopping {
			s.metricsSrv = startMetricsServer(s.config.MetricsEndpoint, s.metrics)
		}
		s.mu.Unlock()
	}
	return s.transport.Listen(s.config)
}

// Run serves until ctx is cancelled and then shuts the server down gracefully
func (s *RPCServer) Run(ctx context.Context) error {
	served := make(chan error, 1)
	go func() { served <- s.Serve() }()

	select {
	case err := <-served:
		// the transport failed on its own, release the boards anyway
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	Logger.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	shutdownErr := s.Shutdown(shutdownCtx)

	if err := <-served; err != nil {
		return err
	}
	return shutdownErr
}

// Shutdown stops routing new requests, waits for the requests in flight (until
// ctx expires), closes the transport with all sessions and finally closes
// every board. It is idempotent.
func (s *RPCServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			Logger.Warningf("Requests still in flight after shutdown timeout, cancelling them")
		}
		s.cancel()

		var errs []error
		if err := s.transport.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("transport: %w", err))
		}
		if err := s.registry.Close(); err != nil {
			errs = append(errs, fmt.Errorf("boards: %w", err))
		}

		s.mu.Lock()
		ms := s.metricsSrv
		s.mu.Unlock()
		if ms != nil {
			if err := ms.shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metrics: %w", err))
			}
		}

		s.shutdownErr = errors.Join(errs...)
		Logger.Infof("Server stopped")
	})
	return s.shutdownErr
}

// startRequest registers a request in flight. It returns false once the
// server is shutting down.
func (s *RPCServer) startRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return false
	}
	s.inflight.Add(1)
	return true
}
