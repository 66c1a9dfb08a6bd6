package channel

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is the part of Client a Shared owner hands out
type Conn interface {
	On(event string, h Handler) func()
	WatchState(fn func(State)) func()
	Close()
}

// Shared reference-counts one connection across views. The connection is
// opened on the first Acquire and closed when the last handle is released.
type Shared struct {
	mu   sync.Mutex
	open func() Conn
	conn Conn
	refs int
}

// NewShared creates an owner that opens connections with open
func NewShared(open func() Conn) *Shared {
	return &Shared{open: open}
}

// Acquire returns a handle on the shared connection, opening it if needed
func (s *Shared) Acquire() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		s.conn = s.open()
		log.Debug().Msg("Opened shared push channel")
	}
	s.refs++
	return &Handle{owner: s, conn: s.conn}
}

// Refs returns the number of live handles
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

func (s *Shared) release(conn Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.mu.Unlock()

	conn.Close()
	log.Debug().Msg("Closed shared push channel")
}

// Handle is one view's reference to the shared connection
type Handle struct {
	owner *Shared
	conn  Conn
	once  sync.Once
}

// On registers a handler on the shared connection
func (h *Handle) On(event string, fn Handler) func() {
	return h.conn.On(event, fn)
}

// WatchState observes the shared connection's state
func (h *Handle) WatchState(fn func(State)) func() {
	return h.conn.WatchState(fn)
}

// Release drops this reference. Safe to call more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.owner.release(h.conn)
	})
}
