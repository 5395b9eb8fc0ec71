// Package hwtesting provides a stub hardware library for tests of the board
// registry, the router and the server. It counts board handshakes and
// component constructions so tests can assert the single-flight and caching
// guarantees of the bridge, and lets tests decide when (and how) each
// handshake completes.
//
// Usage:
//
//	d := hwtesting.NewDriver()           // manual handshakes
//	reg := board.NewRegistry(d, d.Catalog(), board.Options{})
//	go reg.EnsureBoard(ctx, "uno")
//	d.WaitOpens(t, "uno", 1)
//	d.Ready("uno")
//
//	d := hwtesting.NewAutoDriver("bad")  // immediate handshakes, "bad" fails
package hwtesting
