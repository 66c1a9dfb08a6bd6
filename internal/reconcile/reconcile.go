// Package reconcile applies normalized push events to a view's stores.
//
// Created and Updated both upsert, so replays and updates for records the
// view has not seen yet are harmless. Deleted removes if present; deleting an
// absent record changes nothing and reaches no sink. Events keyed by a
// secondary field apply to every stored record carrying that value. Events carry
// no version, so the last event applied wins, including over a fresher local
// write that happened to land first.
package reconcile

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/metrics"
	"github.com/erauner12/propsync/internal/normalize"
	"github.com/erauner12/propsync/internal/scope"
	"github.com/erauner12/propsync/internal/store"
)

// Outcome reports what Apply did with an event
type Outcome int

const (
	// OutcomeApplied means the store was upserted or removed from
	OutcomeApplied Outcome = iota
	// OutcomeIgnored means the type is not tracked by the view, or the record is out of scope
	OutcomeIgnored
	// OutcomeEvicted means an update moved a tracked record out of scope and it was removed
	OutcomeEvicted
	// OutcomeUnresolved means a secondary key matched no stored record
	OutcomeUnresolved
	// OutcomeUnrecognized means the event name has no mapping
	OutcomeUnrecognized
	// OutcomeAbsent means a delete named a record the store does not hold
	OutcomeAbsent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeEvicted:
		return "evicted"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeAbsent:
		return "absent"
	default:
		return "unrecognized"
	}
}

// ActivitySink receives every applied event together with the affected record
type ActivitySink interface {
	Record(ev normalize.Event, record map[string]any)
}

// Reconciler is not safe for concurrent use; a view calls it from its event loop
type Reconciler struct {
	rules  scope.Set
	stores map[entity.Type]*store.Store
	sinks  []ActivitySink
}

// New creates a reconciler over the view's scope and stores
func New(rules scope.Set, stores map[entity.Type]*store.Store, sinks ...ActivitySink) *Reconciler {
	return &Reconciler{rules: rules, stores: stores, sinks: sinks}
}

// Apply reconciles one event
func (r *Reconciler) Apply(ev normalize.Event) Outcome {
	out := r.apply(ev)
	metrics.Event(ev.Type.String(), ev.Action.String(), out.String())
	return out
}

func (r *Reconciler) apply(ev normalize.Event) Outcome {
	logger := log.With().
		Str("eventName", ev.Name).
		Str("entityType", ev.Type.String()).
		Logger()

	if ev.Action == normalize.Unrecognized {
		logger.Debug().Msg("Unrecognized event")
		return OutcomeUnrecognized
	}

	rule, ok := r.rules.Rule(ev.Type)
	st := r.stores[ev.Type]
	if !ok || st == nil {
		logger.Debug().Msg("Event outside view scope, ignoring")
		return OutcomeIgnored
	}

	ids := []int64{ev.ID}
	if ev.Keyed() {
		ids = st.FindAll(ev.Key.Field, ev.Key.Value)
		if len(ids) == 0 {
			logger.Debug().Str("key", ev.Key.String()).Msg("No stored record for event key")
			return OutcomeUnresolved
		}
	}

	// A secondary key may match several records; the event applies to each
	out := OutcomeIgnored
	var record map[string]any
	for _, id := range ids {
		res, rec := r.applyOne(ev, rule, st, logger.With().Int64("entityId", id).Logger(), id)
		switch {
		case res == OutcomeApplied && out != OutcomeApplied:
			out, record = res, rec
		case res == OutcomeEvicted && out != OutcomeApplied:
			out = res
		case res == OutcomeAbsent && out == OutcomeIgnored:
			out = res
		}
	}
	if out != OutcomeApplied {
		return out
	}

	logger.Debug().Str("action", ev.Action.String()).Int("records", len(ids)).Msg("Event applied")
	for _, s := range r.sinks {
		s.Record(ev, record)
	}
	return OutcomeApplied
}

// applyOne applies ev to a single stored id and returns the affected record
func (r *Reconciler) applyOne(ev normalize.Event, rule scope.Rule, st *store.Store, logger zerolog.Logger, id int64) (Outcome, map[string]any) {
	switch ev.Action {
	case normalize.Created, normalize.Updated:
		prev, existed := st.Get(id)
		merged := prev.Attrs
		if merged == nil {
			merged = make(map[string]any, len(ev.Payload))
		}
		for k, v := range ev.Payload {
			merged[k] = v
		}
		if !rule.Allows(merged) {
			if existed && st.Remove(id) {
				logger.Debug().Msg("Record left view scope, removed")
				return OutcomeEvicted, nil
			}
			logger.Debug().Msg("Record outside view scope, ignoring")
			return OutcomeIgnored, nil
		}
		st.Upsert(id, ev.Payload)
		return OutcomeApplied, merged

	case normalize.Deleted:
		prev, _ := st.Get(id)
		if !st.Remove(id) {
			logger.Debug().Msg("Delete for a record not in the store")
			return OutcomeAbsent, nil
		}
		return OutcomeApplied, prev.Attrs
	}
	return OutcomeIgnored, nil
}
