package board

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/hwbridge/lib/hardware"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("board")

// --------------------------------------------------------------------------
// Observer (optional instrumentation hooks)
// --------------------------------------------------------------------------

// IObserver receives lifecycle notifications from the registry and its boards.
// A nil observer is replaced by a no-op implementation.
type IObserver interface {
	BoardConnecting(id string)
	BoardConnected(id string, took time.Duration)
	BoardFailed(id string, err error)
	ComponentConstructed(boardID, class string)
}

type nopObserver struct{}

func (nopObserver) BoardConnecting(string)               {}
func (nopObserver) BoardConnected(string, time.Duration) {}
func (nopObserver) BoardFailed(string, error)            {}
func (nopObserver) ComponentConstructed(string, string)  {}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Options configures a Registry
type Options struct {
	// ConnectTimeout fails a handshake that reports neither ready nor error
	// within the given duration (0 waits forever)
	ConnectTimeout time.Duration
	// Observer receives lifecycle notifications (may be nil)
	Observer IObserver
}

// connectAttempt is the in-flight (or finished) connection for one board id.
// done is closed once board or err is set; both are immutable afterwards.
type connectAttempt struct {
	done  chan struct{}
	board *Board
	err   error
}

// Registry owns all board connections. For every board id there is at most one
// connection attempt at a time; concurrent callers share it.
type Registry struct {
	driver   hardware.Driver
	catalog  *hardware.Catalog
	options  Options
	observer IObserver
	boards   *xsync.MapOf[string, *connectAttempt]
	closed   atomic.Bool
}

// NewRegistry creates a registry that opens boards through driver and builds
// components from catalog
func NewRegistry(driver hardware.Driver, catalog *hardware.Catalog, options Options) *Registry {
	observer := options.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Registry{
		driver:   driver,
		catalog:  catalog,
		options:  options,
		observer: observer,
		boards:   xsync.NewMapOf[string, *connectAttempt](),
	}
}

// EnsureBoard returns the ready board with the given id, connecting it first if
// needed. Callers arriving while a connection attempt is in flight wait for that
// attempt instead of starting another one. A failed attempt is removed from the
// registry before its waiters are released, so the next call starts fresh.
//
// ctx only bounds how long this caller waits; cancelling it does not abort the
// shared attempt.
func (r *Registry) EnsureBoard(ctx context.Context, id string) (*Board, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}

	attempt, loaded := r.boards.LoadOrCompute(id, func() *connectAttempt {
		a := &connectAttempt{done: make(chan struct{})}
		Logger.Infof("connecting board %s using %s driver", id, r.driver.Name())
		r.observer.BoardConnecting(id)
		go r.connect(id, a)
		return a
	})
	if loaded {
		Logger.Debugf("board %s: joining existing connection", id)
	}

	select {
	case <-attempt.done:
		return attempt.board, attempt.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect runs one handshake and publishes its outcome on a
func (r *Registry) connect(id string, a *connectAttempt) {
	start := time.Now()

	handle, err := r.driver.OpenBoard(id)
	if err == nil {
		err = r.awaitHandshake(handle)
	}

	if err != nil {
		if handle != nil {
			_ = handle.Close()
		}

		// Purge the entry (only if it is still ours) before releasing waiters
		r.boards.Compute(id, func(old *connectAttempt, loaded bool) (*connectAttempt, bool) {
			if loaded && old != a {
				return old, false
			}
			return nil, true
		})

		a.err = &ConnectError{BoardID: id, Err: err}
		Logger.Warningf("board %s: %v", id, err)
		r.observer.BoardFailed(id, err)
		close(a.done)
		return
	}

	a.board = newBoard(handle, r.catalog, r.observer)
	Logger.Infof("board %s connected (took %s)", id, time.Since(start))
	r.observer.BoardConnected(id, time.Since(start))
	close(a.done)

	// A Close that raced with the handshake must not leak the board
	if r.closed.Load() {
		_ = a.board.Close()
	}
}

// awaitHandshake waits for the single ready/error event of handle
func (r *Registry) awaitHandshake(handle hardware.BoardHandle) error {
	var timeout <-chan time.Time
	if r.options.ConnectTimeout > 0 {
		timer := time.NewTimer(r.options.ConnectTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case ev, ok := <-handle.Events():
		if !ok {
			return fmt.Errorf("board handle closed before handshake completed")
		}
		if ev.Type == hardware.EventReady {
			return nil
		}
		if ev.Err == nil {
			return fmt.Errorf("board reported %s", ev.Type)
		}
		return ev.Err
	case <-timeout:
		return fmt.Errorf("handshake timed out after %s", r.options.ConnectTimeout)
	}
}

// Size returns the number of boards that are connecting or connected
func (r *Registry) Size() int {
	return r.boards.Size()
}

// Close closes every connected board. Attempts still in flight close their
// board once the handshake finishes. EnsureBoard fails afterwards.
func (r *Registry) Close() error {
	if r.closed.Swap(true) {
		return nil
	}

	var firstErr error
	r.boards.Range(func(id string, attempt *connectAttempt) bool {
		select {
		case <-attempt.done:
			if attempt.board != nil {
				if err := attempt.board.Close(); err != nil && firstErr == nil {
					firstErr = err
				}
			}
		default:
		}
		return true
	})
	return firstErr
}
