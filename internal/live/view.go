// Package live mounts a dashboard view: one store per visible collection,
// kept current by an initial snapshot, the push channel and the user's own
// writes. Every store mutation of a view runs on that view's event loop.
package live

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/erauner12/propsync/internal/aggregate"
	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/channel"
	"github.com/erauner12/propsync/internal/client"
	"github.com/erauner12/propsync/internal/entity"
	"github.com/erauner12/propsync/internal/metrics"
	"github.com/erauner12/propsync/internal/normalize"
	"github.com/erauner12/propsync/internal/reconcile"
	"github.com/erauner12/propsync/internal/scope"
	"github.com/erauner12/propsync/internal/snapshot"
	"github.com/erauner12/propsync/internal/store"
	"github.com/erauner12/propsync/internal/subscription"
)

var (
	// ErrUnmounted is returned by operations on a view that has been unmounted
	ErrUnmounted = errors.New("view unmounted")

	// ErrNotInScope is returned for collections the signed-in role cannot see
	ErrNotInScope = errors.New("collection not visible to this role")

	// ErrUnknownRole is returned by Mount for identities without a known role
	ErrUnknownRole = errors.New("unknown role")
)

const (
	defaultWorkers = 2
	opQueueSize    = 64
)

// Options configures Mount
type Options struct {
	Identity auth.Identity
	API      *client.HTTPClient
	Channel  *channel.Shared

	FeedCap int // activity feed lines, default aggregate.DefaultFeedCap
	TrayCap int // notification tray lines, default aggregate.DefaultTrayCap
	Workers int // concurrent background reloads, default 2
}

// View is one mounted dashboard. Dashboard, List and Changes may be used
// from any goroutine.
type View struct {
	id       string
	identity auth.Identity
	rules    scope.Set
	logger   zerolog.Logger

	stores   map[entity.Type]*store.Store
	loaders  map[entity.Type]*snapshot.Loader
	mutators map[entity.Type]*client.Collection
	activity snapshot.Lister

	reconciler *reconcile.Reconciler
	feed       *aggregate.Feed
	feedCap    int
	tray       *aggregate.Tray
	trayCap    int
	subs       *subscription.Manager

	ops      chan func()
	changes  chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	loads      singleflight.Group
	poolMu     sync.RWMutex
	pool       *workerpool.WorkerPool
	poolClosed bool

	unmountOnce sync.Once
}

// Mount builds the view for opts.Identity, subscribes it to the push channel
// and loads every visible collection. A failed initial load unmounts the view
// and is returned; it is the only blocking error a view produces.
func Mount(ctx context.Context, opts Options) (*View, error) {
	role, ok := auth.ParseRole(string(opts.Identity.Role))
	if !ok {
		return nil, ErrUnknownRole
	}
	if opts.FeedCap <= 0 {
		opts.FeedCap = aggregate.DefaultFeedCap
	}
	if opts.TrayCap <= 0 {
		opts.TrayCap = aggregate.DefaultTrayCap
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	v := &View{
		id:       uuid.NewString(),
		identity: opts.Identity,
		rules:    scope.Resolve(role),
		stores:   make(map[entity.Type]*store.Store),
		loaders:  make(map[entity.Type]*snapshot.Loader),
		mutators: make(map[entity.Type]*client.Collection),
		activity: opts.API.Collection(snapshot.ActivityPath),
		feed:     aggregate.NewFeed(opts.FeedCap),
		feedCap:  opts.FeedCap,
		tray:     aggregate.NewTray(opts.TrayCap),
		trayCap:  opts.TrayCap,
		ops:      make(chan func(), opQueueSize),
		changes:  make(chan struct{}, 1),
		loopDone: make(chan struct{}),
		pool:     workerpool.New(opts.Workers),
	}
	v.identity.Role = role
	v.ctx, v.cancel = context.WithCancel(context.WithoutCancel(ctx))
	v.logger = log.With().
		Str("viewId", v.id).
		Str("role", string(role)).
		Int64("userId", opts.Identity.ID).
		Logger()

	for _, t := range v.rules.Types() {
		rule, _ := v.rules.Rule(t)
		st := store.New(t)
		v.stores[t] = st
		v.loaders[t] = snapshot.New(rule, st, opts.API.Collection(rule.Endpoint))
		v.mutators[t] = opts.API.Collection(rule.Mutate)
	}
	v.reconciler = reconcile.New(v.rules, v.stores, v.feed)

	metrics.ViewMounted(1)
	go v.loop()

	v.subs = subscription.New(opts.Channel.Acquire(), v, v.id)
	if err := v.subscribe(); err != nil {
		v.Unmount()
		return nil, err
	}
	v.subs.Start()

	if err := v.initialLoad(ctx); err != nil {
		v.logger.Error().Err(err).Msg("Initial load failed")
		v.Unmount()
		return nil, err
	}

	v.logger.Info().Int("collections", len(v.stores)).Msg("View mounted")
	return v, nil
}

// subscribe registers every event of every visible type, plus the tray events
func (v *View) subscribe() error {
	for _, t := range v.rules.Types() {
		for _, name := range normalize.EventsFor(t) {
			if err := v.subs.Subscribe(name, t, v.onFrame); err != nil {
				return err
			}
		}
	}
	subscribed := v.subs.Events()
	for _, name := range normalize.TrayEvents {
		if slices.Contains(subscribed, name) {
			continue
		}
		t, _ := normalize.TypeOf(name)
		if err := v.subs.Subscribe(name, t, v.onFrame); err != nil {
			return err
		}
	}
	return nil
}

func (v *View) initialLoad(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range v.rules.Types() {
		loader := v.loaders[t]
		g.Go(func() error {
			res, err := loader.Fetch(gctx)
			if err != nil {
				return err
			}
			return v.do(func() {
				if loader.Commit(res) {
					v.notify()
				}
			})
		})
	}
	g.Go(func() error {
		items, err := snapshot.LoadActivity(gctx, v.activity, v.trayCap)
		if err != nil {
			if client.IsAuth(err) {
				return err
			}
			v.logger.Warn().Err(err).Msg("Failed to load notification history")
			return nil
		}
		return v.do(func() {
			v.tray.Seed(items)
			v.notify()
		})
	})
	return g.Wait()
}

// ID returns the view's identifier, used in logs
func (v *View) ID() string {
	return v.id
}

// Identity returns the signed-in user the view was mounted for
func (v *View) Identity() auth.Identity {
	return v.identity
}

// Types lists the collections the view holds
func (v *View) Types() []entity.Type {
	return v.rules.Types()
}

// Changes delivers a signal after store or feed changes. Signals coalesce:
// one receive may stand for several changes.
func (v *View) Changes() <-chan struct{} {
	return v.changes
}

func (v *View) notify() {
	select {
	case v.changes <- struct{}{}:
	default:
	}
}

func (v *View) loop() {
	defer close(v.loopDone)
	for {
		select {
		case op := <-v.ops:
			op()
		case <-v.ctx.Done():
			return
		}
	}
}

// post queues fn on the event loop without waiting for it
func (v *View) post(fn func()) bool {
	select {
	case v.ops <- fn:
		return true
	case <-v.ctx.Done():
		return false
	}
}

// do runs fn on the event loop and waits for it to finish
func (v *View) do(fn func()) error {
	done := make(chan struct{})
	if !v.post(func() {
		fn()
		close(done)
	}) {
		return ErrUnmounted
	}
	select {
	case <-done:
		return nil
	case <-v.ctx.Done():
		return ErrUnmounted
	}
}

// onFrame runs on the channel's read goroutine
func (v *View) onFrame(f channel.Frame) {
	ev, err := normalize.Normalize(f.Event, f.Data, f.ReceivedAt)
	if err != nil {
		v.logger.Warn().Err(err).Str("eventName", f.Event).Msg("Dropping malformed push event")
		metrics.MalformedEvent(f.Event)
		return
	}

	v.post(func() {
		changed := false
		if slices.Contains(normalize.TrayEvents, ev.Name) && v.tray.Push(ev) {
			changed = true
		}
		switch v.reconciler.Apply(ev) {
		case reconcile.OutcomeApplied, reconcile.OutcomeEvicted:
			changed = true
		case reconcile.OutcomeIgnored:
			v.logger.Debug().Str("eventName", ev.Name).Msg("Event outside view scope")
		case reconcile.OutcomeUnresolved:
			v.logger.Debug().Str("eventName", ev.Name).Stringer("key", ev.Key).Msg("Event key matched no record")
		}
		if changed {
			v.notify()
		}
	})
}

// Unmount tears the view down: handlers are removed, the channel handle is
// released, in-flight loads are cancelled and their results discarded.
// Safe to call more than once.
func (v *View) Unmount() {
	v.unmountOnce.Do(func() {
		if v.subs != nil {
			v.subs.Close()
		}
		for _, l := range v.loaders {
			l.Invalidate()
		}
		v.cancel()

		v.poolMu.Lock()
		v.poolClosed = true
		v.poolMu.Unlock()
		v.pool.StopWait()

		<-v.loopDone
		metrics.ViewMounted(-1)
		v.logger.Info().Msg("View unmounted")
	})
}
