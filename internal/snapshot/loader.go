// Package snapshot loads role-scoped collections from the REST API into stores.
package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/metrics"
	"github.com/erauner12/propsync/internal/scope"
	"github.com/erauner12/propsync/internal/store"
)

// Lister fetches one collection. *client.Collection implements it.
type Lister interface {
	List(ctx context.Context) ([]map[string]any, error)
}

// Result is a fetched, validated snapshot waiting to be committed
type Result struct {
	Type    entity.Type
	Records []entity.Entity
	Dropped int

	gen uint64
}

// Loader keeps one store in line with its endpoint. Every Fetch takes a new
// generation. Commit only moves forward: a Result older than the last
// committed one, or started before the last Invalidate, is discarded. A failed
// Fetch commits nothing, so it never hides an older successful one.
type Loader struct {
	rule   scope.Rule
	store  *store.Store
	src    Lister
	gen    atomic.Uint64
	logger zerolog.Logger

	mu        sync.Mutex
	committed uint64
	floor     uint64 // generations at or below floor were invalidated
}

// New creates a loader for the store governed by rule
func New(rule scope.Rule, st *store.Store, src Lister) *Loader {
	return &Loader{
		rule:  rule,
		store: st,
		src:   src,
		logger: log.With().
			Str("entityType", rule.Type.String()).
			Str("endpoint", rule.Endpoint).
			Logger(),
	}
}

// Type returns the entity type the loader fills
func (l *Loader) Type() entity.Type {
	return l.rule.Type
}

// Fetch downloads and validates the collection without touching the store.
// Records without a valid id and records outside the rule's scope are dropped.
func (l *Loader) Fetch(ctx context.Context) (*Result, error) {
	gen := l.gen.Add(1)
	started := time.Now()

	raw, err := l.src.List(ctx)
	metrics.SnapshotLoad(l.rule.Type.String(), started, err)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Snapshot load failed")
		return nil, err
	}

	res := &Result{Type: l.rule.Type, Records: make([]entity.Entity, 0, len(raw)), gen: gen}
	for i, attrs := range raw {
		e, err := entity.FromAttrs(l.rule.Type, attrs)
		if err != nil {
			l.logger.Warn().Err(err).Int("index", i).Msg("Dropping record without a valid id")
			res.Dropped++
			continue
		}
		if !l.rule.Allows(attrs) {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, e)
	}

	l.logger.Debug().
		Int("records", len(res.Records)).
		Int("dropped", res.Dropped).
		Dur("duration", time.Since(started)).
		Msg("Snapshot fetched")
	return res, nil
}

// Commit replaces the store contents with res unless a newer Result has
// already been committed or Invalidate was called after res was fetched.
// Reports whether the store was replaced.
func (l *Loader) Commit(res *Result) bool {
	if res == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if res.gen <= l.committed || res.gen <= l.floor {
		l.logger.Debug().
			Uint64("generation", res.gen).
			Uint64("committed", l.committed).
			Msg("Discarding stale snapshot")
		return false
	}
	l.committed = res.gen
	l.store.ReplaceAll(res.Records)
	return true
}

// Invalidate makes every Result fetched so far stale, including fetches
// still in flight
func (l *Loader) Invalidate() {
	l.mu.Lock()
	l.floor = l.gen.Load()
	l.mu.Unlock()
}

// Load fetches and commits in one step
func (l *Loader) Load(ctx context.Context) error {
	res, err := l.Fetch(ctx)
	if err != nil {
		return err
	}
	l.Commit(res)
	return nil
}
