// Package subscription manages one view's interest in push events.
//
// A Manager records which event names the view wants, registers exactly one
// handler per name the first time the channel is connected, asks for a fresh
// snapshot of every subscribed store after each reconnect, and removes all
// of its handlers when the view goes away.
package subscription

//go:generate mockgen -destination=../mocks/mock_resyncer.go -package=mocks github.com/erauner12/propsync/internal/subscription Resyncer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/channel"
	"github.com/erauner12/propsync/internal/entity"
)

var (
	// ErrAlreadySubscribed is returned when a view subscribes to the same event twice
	ErrAlreadySubscribed = errors.New("event already subscribed by this view")

	// ErrClosed is returned by Subscribe after Close
	ErrClosed = errors.New("subscription manager closed")
)

// Channel is the view's handle on the shared push channel
type Channel interface {
	On(event string, h channel.Handler) func()
	WatchState(fn func(channel.State)) func()
	Release()
}

// Resyncer reloads one store after a reconnect gap
type Resyncer interface {
	Resync(t entity.Type)
}

type interest struct {
	typ     entity.Type
	handler channel.Handler
}

// Manager is safe for concurrent use
type Manager struct {
	mu         sync.Mutex
	ch         Channel
	resync     Resyncer
	order      []string
	interests  map[string]interest
	offs       map[string]func()
	registered bool
	last       channel.State
	stopWatch  func()
	closed     atomic.Bool
	logger     zerolog.Logger
}

// New creates a manager for one view. Call Start once every event is subscribed.
func New(ch Channel, resync Resyncer, viewID string) *Manager {
	return &Manager{
		ch:        ch,
		resync:    resync,
		interests: make(map[string]interest),
		offs:      make(map[string]func()),
		last:      channel.Disconnected,
		logger:    log.With().Str("viewId", viewID).Logger(),
	}
}

// Subscribe records interest in one event name feeding store type typ.
// If the channel has already connected the handler is registered at once.
func (m *Manager) Subscribe(event string, typ entity.Type, h channel.Handler) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.interests[event]; ok {
		return ErrAlreadySubscribed
	}
	m.interests[event] = interest{typ: typ, handler: h}
	m.order = append(m.order, event)
	if m.registered {
		m.register(event)
	}
	return nil
}

// Events lists the subscribed event names in subscription order
func (m *Manager) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Start begins observing the channel state
func (m *Manager) Start() {
	stop := m.ch.WatchState(m.onState)
	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()
}

// register must be called with mu held
func (m *Manager) register(event string) {
	in := m.interests[event]
	m.offs[event] = m.ch.On(event, func(f channel.Frame) {
		// Frames already in flight when the view closed are dropped
		if m.closed.Load() {
			return
		}
		in.handler(f)
	})
}

func (m *Manager) onState(s channel.State) {
	if m.closed.Load() {
		return
	}

	m.mu.Lock()
	prev := m.last
	m.last = s

	var stale []entity.Type
	if s == channel.Connected {
		if !m.registered {
			for _, event := range m.order {
				m.register(event)
			}
			m.registered = true
			m.logger.Debug().Int("events", len(m.order)).Msg("Registered push handlers")
		}
		if prev == channel.Reconnecting {
			seen := make(map[entity.Type]bool)
			for _, event := range m.order {
				t := m.interests[event].typ
				if !seen[t] {
					seen[t] = true
					stale = append(stale, t)
				}
			}
		}
	}
	m.mu.Unlock()

	for _, t := range stale {
		m.logger.Info().Str("entityType", t.String()).Msg("Resyncing after reconnect")
		m.resync.Resync(t)
	}
}

// Close deregisters every handler and releases the channel handle. Idempotent.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}

	m.mu.Lock()
	offs := m.offs
	m.offs = make(map[string]func())
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()

	for _, off := range offs {
		off()
	}
	if stop != nil {
		stop()
	}
	m.ch.Release()
	m.logger.Debug().Int("handlers", len(offs)).Msg("Subscriptions closed")
}
