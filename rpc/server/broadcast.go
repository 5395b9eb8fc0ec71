package server

import (
	"github.com/ValentinKolb/hwbridge/rpc/common"
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
	"sync/atomic"
)

// Broadcaster tracks the live sessions and delivers response frames to them.
// A session that fails a write is closed and removed; delivery to the other
// sessions is not affected.
type Broadcaster struct {
	sessions *xsync.MapOf[string, transport.ISession]
	// onDeliveryError is called for every failed write (may be nil)
	onDeliveryError func(s transport.ISession, err error)
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		sessions: xsync.NewMapOf[string, transport.ISession](),
	}
}

// Register adds s to the live sessions
func (b *Broadcaster) Register(s transport.ISession) {
	b.sessions.Store(s.ID(), s)
}

// Unregister removes s from the live sessions
func (b *Broadcaster) Unregister(s transport.ISession) {
	b.sessions.Delete(s.ID())
}

// Size returns the number of live sessions
func (b *Broadcaster) Size() int {
	return b.sessions.Size()
}

// Broadcast writes frame to every live session in parallel and returns the
// number of sessions that received it
func (b *Broadcaster) Broadcast(frame []byte) int {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	b.sessions.Range(func(_ string, s transport.ISession) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.send(s, frame) {
				delivered.Add(1)
			}
		}()
		return true
	})
	wg.Wait()
	return int(delivered.Load())
}

// Unicast writes frame to s if it is still live. It reports whether the frame was written.
func (b *Broadcaster) Unicast(s transport.ISession, frame []byte) bool {
	if _, ok := b.sessions.Load(s.ID()); !ok {
		Logger.Debugf("Dropping response for closed session %s", s.ID())
		return false
	}
	return b.send(s, frame)
}

// Deliver sends frame according to mode: to every session for broadcast,
// only to origin otherwise. It returns the number of sessions reached.
func (b *Broadcaster) Deliver(mode common.DeliveryMode, origin transport.ISession, frame []byte) int {
	if mode == common.DeliveryOrigin {
		if b.Unicast(origin, frame) {
			return 1
		}
		return 0
	}
	return b.Broadcast(frame)
}

// send writes to one session and drops the session on failure
func (b *Broadcaster) send(s transport.ISession, frame []byte) bool {
	err := s.Send(frame)
	if err == nil {
		return true
	}
	Logger.Warningf("Write to session %s (%s) failed, closing it: %v", s.ID(), s.RemoteAddr(), err)
	b.Unregister(s)
	_ = s.Close()
	if b.onDeliveryError != nil {
		b.onDeliveryError(s, err)
	}
	return false
}
