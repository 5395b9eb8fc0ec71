// Package server implements the RPC server of the hardware bridge.
// It accepts sessions through a transport, decodes every inbound frame into a
// request, executes it against the board registry and delivers exactly one
// response per request.
//
// Key Components:
//
//   - RPCServer: The composition root. It owns the board registry, the live
//     sessions and the router, and wires them to a transport.IRPCServerTransport.
//
//   - IRPCServerAdapter: Executes a decoded request. NewBoardServerAdapter
//     resolves the board (connect) and additionally the component and the
//     method (rpc).
//
//   - Router: Decodes a frame, applies the request timeout, recovers from
//     panics and hands the encoded response to the Broadcaster.
//
//   - Broadcaster: Tracks the live sessions. In the default "broadcast" mode
//     every response is written to every session; in "origin" mode only the
//     requesting session receives it. Malformed frames are always answered to
//     the sender only. A session whose write fails is closed and removed.
//
// Usage Example:
//
//	config := common.DefaultServerConfig()
//	config.Endpoint = "0.0.0.0:3074"
//
//	s, err := server.NewRPCServer(
//		config,
//		ws.NewWSServerTransport(),
//		serializer.NewJSONSerializer(),
//		sim.NewDriver(sim.Config{}),
//		sim.NewCatalog(),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//	if err := s.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// The requests of one session are routed one after another in the order they
// arrived, by a worker goroutine per session. A request waiting for a board
// handshake holds up the later requests of its session but never the read
// loop or other sessions.
//
// When config.MetricsEndpoint is set, the server additionally serves
// GET /metrics (prometheus text format) and GET /healthz on that endpoint.
package server
