package aggregate

import (
	"slices"
	"sync"

	"github.com/erauner12/propsync/internal/normalize"
)

// DefaultFeedCap is the length of the admin and landlord activity feeds
const DefaultFeedCap = 5

// DefaultTrayCap is the length of the notification tray
const DefaultTrayCap = 10

func newestFirst(a, b Activity) int {
	return b.Time.Compare(a.Time)
}

// Feed is a capped list of activity lines, newest first.
// It is the only state the aggregator owns.
type Feed struct {
	mu    sync.Mutex
	cap   int
	items []Activity
}

// NewFeed creates a feed holding at most cap lines
func NewFeed(cap int) *Feed {
	if cap <= 0 {
		cap = DefaultFeedCap
	}
	return &Feed{cap: cap}
}

// Add appends a line, re-sorts and truncates to the cap
func (f *Feed) Add(a Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append(f.items, a)
	slices.SortStableFunc(f.items, newestFirst)
	if len(f.items) > f.cap {
		f.items = f.items[:f.cap]
	}
}

// Record describes an applied event and adds it
func (f *Feed) Record(ev normalize.Event, record map[string]any) {
	f.Add(Describe(ev, record))
}

// Items returns a copy of the lines
func (f *Feed) Items() []Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Tray is the notification tray: the newest events of interest with an
// unread counter that MarkRead resets.
type Tray struct {
	mu     sync.Mutex
	cap    int
	items  []Activity
	unread int
}

// NewTray creates a tray holding at most cap lines
func NewTray(cap int) *Tray {
	if cap <= 0 {
		cap = DefaultTrayCap
	}
	return &Tray{cap: cap}
}

// Seed replaces the tray contents with server-side history; all of it counts as unread
func (t *Tray) Seed(items []Activity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.items = slices.Clone(items)
	if len(t.items) > t.cap {
		t.items = t.items[:t.cap]
	}
	t.unread = len(t.items)
}

// Push adds a tray line for tenant_created and email_approved events.
// Other events are ignored. Reports whether the event was taken.
func (t *Tray) Push(ev normalize.Event) bool {
	var a Activity
	f := fields{body: ev.Body}
	switch ev.Name {
	case "tenant_created":
		a.Message = "New tenant " + f.text("email") + " assigned to " + f.text("property_name")
		a.Severity = SeveritySuccess
	case "email_approved":
		a.Message = approvedLine(f)
		a.Severity = SeveritySuccess
	default:
		return false
	}
	a.Type = ev.Name
	a.Time = ev.ReceivedAt
	a.ID = ev.Name + "-" + f.text("id")

	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = append([]Activity{a}, t.items...)
	if len(t.items) > t.cap {
		t.items = t.items[:t.cap]
	}
	t.unread++
	return true
}

// Items returns a copy of the tray lines, newest first
func (t *Tray) Items() []Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.items)
}

// Unread returns the unread counter
func (t *Tray) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// MarkRead resets the unread counter
func (t *Tray) MarkRead() {
	t.mu.Lock()
	t.unread = 0
	t.mu.Unlock()
}
