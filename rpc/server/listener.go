package server

import (
	"github.com/ValentinKolb/hwbridge/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
)

// sessionListener connects the transport to the broadcaster and the router
type sessionListener struct {
	server *RPCServer
	queues *xsync.MapOf[string, *sessionQueue]
}

func newSessionListener(server *RPCServer) *sessionListener {
	return &sessionListener{
		server: server,
		queues: xsync.NewMapOf[string, *sessionQueue](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ISessionHandler)
// --------------------------------------------------------------------------

func (l *sessionListener) OnOpen(s transport.ISession) {
	l.queues.Store(s.ID(), &sessionQueue{})
	l.server.broadcaster.Register(s)
	Logger.Infof("Session %s connected from %s (%d active)", s.ID(), s.RemoteAddr(), l.server.broadcaster.Size())
}

// OnMessage queues the request of s. The requests of one session are routed
// one after another in arrival order by a worker goroutine, so a request
// waiting for a board handshake never blocks the session's read loop or
// other sessions.
func (l *sessionListener) OnMessage(s transport.ISession, frame []byte) {
	if !l.server.startRequest() {
		Logger.Debugf("Dropping request from session %s, server is shutting down", s.ID())
		return
	}
	q, _ := l.queues.LoadOrCompute(s.ID(), func() *sessionQueue { return &sessionQueue{} })
	if q.push(frame) {
		go l.drain(s, q)
	}
}

func (l *sessionListener) OnClose(s transport.ISession, err error) {
	// a running worker keeps its queue and finishes the accepted requests
	l.queues.Delete(s.ID())
	l.server.broadcaster.Unregister(s)
	if err != nil {
		Logger.Warningf("Session %s disconnected: %v", s.ID(), err)
		return
	}
	Logger.Infof("Session %s disconnected (%d active)", s.ID(), l.server.broadcaster.Size())
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// drain routes the queued requests of s until the queue is empty
func (l *sessionListener) drain(s transport.ISession, q *sessionQueue) {
	for {
		frame, ok := q.pop()
		if !ok {
			return
		}
		l.route(s, frame)
	}
}

func (l *sessionListener) route(s transport.ISession, frame []byte) {
	defer l.server.inflight.Done()
	l.server.router.Route(l.server.ctx, s, frame)
}

// sessionQueue is the FIFO of requests received from one session
type sessionQueue struct {
	mu      sync.Mutex
	frames  [][]byte
	running bool
}

// push appends frame and reports whether a worker has to be started
func (q *sessionQueue) push(frame []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.frames = append(q.frames, frame)
	if q.running {
		return false
	}
	q.running = true
	return true
}

// pop removes the oldest frame. Once the queue is empty it marks the worker
// as stopped and returns false.
func (q *sessionQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.frames) == 0 {
		q.running = false
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	return frame, true
}
