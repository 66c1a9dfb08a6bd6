package live

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/erauner12/propsync/internal/auth"
	"github.com/erauner12/propsync/internal/channel"
	"github.com/erauner12/propsync/internal/client"
	"github.com/erauner12/propsync/internal/entity"
)

// fakeConn is an in-process push connection driven by the test
type fakeConn struct {
	mu       sync.Mutex
	state    channel.State
	next     int
	handlers map[string]map[int]channel.Handler
	watchers map[int]func(channel.State)
	closed   bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		state:    channel.Connected,
		handlers: make(map[string]map[int]channel.Handler),
		watchers: make(map[int]func(channel.State)),
	}
}

func (f *fakeConn) On(event string, h channel.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	if f.handlers[event] == nil {
		f.handlers[event] = make(map[int]channel.Handler)
	}
	f.handlers[event][id] = h
	return func() {
		f.mu.Lock()
		delete(f.handlers[event], id)
		f.mu.Unlock()
	}
}

func (f *fakeConn) WatchState(fn func(channel.State)) func() {
	f.mu.Lock()
	f.next++
	id := f.next
	f.watchers[id] = fn
	current := f.state
	f.mu.Unlock()

	fn(current)
	return func() {
		f.mu.Lock()
		delete(f.watchers, id)
		f.mu.Unlock()
	}
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) setState(s channel.State) {
	f.mu.Lock()
	f.state = s
	var fns []func(channel.State)
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

func (f *fakeConn) emit(event, data string) {
	f.mu.Lock()
	var hs []channel.Handler
	for _, h := range f.handlers[event] {
		hs = append(hs, h)
	}
	f.mu.Unlock()
	for _, h := range hs {
		h(channel.Frame{Event: event, Data: json.RawMessage(data), ReceivedAt: time.Now()})
	}
}

func (f *fakeConn) handlerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, hs := range f.handlers {
		n += len(hs)
	}
	return n
}

// fakeAPI serves canned collections and records calls
type fakeAPI struct {
	mu    sync.Mutex
	lists map[string]string
	fail  map[string]int
	calls map[string]int
}

func newFakeAPI(lists map[string]string) *fakeAPI {
	return &fakeAPI{lists: maps.Clone(lists), fail: map[string]int{}, calls: map[string]int{}}
}

func (a *fakeAPI) count(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[key]
}

func (a *fakeAPI) failWith(key string, status int) {
	a.mu.Lock()
	a.fail[key] = status
	a.mu.Unlock()
}

func (a *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	a.mu.Lock()
	a.calls[key]++
	status := a.fail[key]
	body, ok := a.lists[r.URL.Path]
	a.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message": "Server exploded"}`))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	case http.MethodPost:
		raw, _ := io.ReadAll(r.Body)
		var rec map[string]any
		_ = json.Unmarshal(raw, &rec)
		rec["id"] = 99
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": rec})
	case http.MethodPut:
		raw, _ := io.ReadAll(r.Body)
		_, _ = w.Write(raw)
	case http.MethodDelete:
		w.WriteHeader(http.StatusNoContent)
	}
}

var adminLists = map[string]string{
	"/api/users":               `{"data": [{"id": 1, "role": "landlord", "name": "Lee"}, {"id": 2, "role": "tenant"}]}`,
	"/api/properties":          `[{"id": 10, "name": "Elm Court"}]`,
	"/api/tenants/all":         `{"data": [{"id": 20, "status": "active"}, {"id": 21, "status": "ended"}]}`,
	"/api/maintenance":         `{"data": [{"id": 30, "status": "pending", "priority": "urgent", "title": "Leak", "created_at": "2025-05-01T08:00:00Z"}]}`,
	"/api/payments":            `{"data": [{"id": 40, "status": "paid", "type": "rent", "amount": "1500.00", "transaction_id": "TX1", "payment_method": "mpesa", "created_at": "2025-05-02T08:00:00Z"}]}`,
	"/api/auth/allowed-emails": `[{"id": 50, "email": "new@x.co"}]`,
	"/api/activity":            `{"data": [{"type": "tenant_created", "message": "New tenant a@b.co", "created_at": "2025-04-01T00:00:00Z"}]}`,
}

var landlordLists = map[string]string{
	"/api/properties":  `[{"id": 10, "name": "Elm Court"}]`,
	"/api/maintenance": `{"data": [{"id": 30, "status": "pending", "title": "Leak", "created_at": "2025-05-01T08:00:00Z"}]}`,
	"/api/payments":    `{"data": [{"id": 40, "status": "pending", "amount": 900, "transaction_id": "TX1", "payment_method": "mpesa", "created_at": "2025-05-02T08:00:00Z"}]}`,
	"/api/activity":    `{"data": []}`,
}

type fixture struct {
	api    *fakeAPI
	conn   *fakeConn
	shared *channel.Shared
	opts   Options
}

func newFixture(t *testing.T, role auth.Role, lists map[string]string) *fixture {
	t.Helper()
	api := newFakeAPI(lists)
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	conn := newFakeConn()
	shared := channel.NewShared(func() channel.Conn { return conn })
	session := auth.NewSession(auth.NewMemoryStore("opaque-token"), nil)

	return &fixture{
		api:    api,
		conn:   conn,
		shared: shared,
		opts: Options{
			Identity: auth.Identity{ID: 7, Name: "Sam", Role: role},
			API:      client.NewHTTPClient(server.URL, session),
			Channel:  shared,
		},
	}
}

func (f *fixture) mount(t *testing.T) *View {
	t.Helper()
	v, err := Mount(context.Background(), f.opts)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(v.Unmount)
	return v
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func listIDs(t *testing.T, v *View, typ entity.Type) []int64 {
	t.Helper()
	records, err := v.List(typ)
	if err != nil {
		t.Fatalf("List(%s): %v", typ, err)
	}
	out := make([]int64, 0, len(records))
	for _, e := range records {
		out = append(out, e.ID)
	}
	return out
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMount_AdminLoadsEveryCollection(t *testing.T) {
	f := newFixture(t, auth.RoleAdmin, adminLists)
	v := f.mount(t)

	d := v.Dashboard()
	want := map[string]int{
		"user":                1,
		"property":            1,
		"tenancy":             2,
		"maintenance_request": 1,
		"payment":             1,
		"allowed_email":       1,
	}
	for name, n := range want {
		if got := len(d.Collections[name]); got != n {
			t.Errorf("collection %s has %d records, want %d", name, got, n)
		}
	}

	s := d.Summary
	if s.TotalProperties != 1 || s.ActiveTenancies != 1 || s.PendingMaintenance != 1 || s.UrgentMaintenance != 1 || s.MonthlyRevenue != 1500 {
		t.Errorf("Summary = %+v", s)
	}
	if len(d.Notifications) != 1 || d.Unread != 1 {
		t.Errorf("tray = %v unread %d, want one seeded line", d.Notifications, d.Unread)
	}
	if f.shared.Refs() != 1 {
		t.Errorf("Refs = %d, want 1", f.shared.Refs())
	}
}

func TestMount_InitialLoadFailureIsBlocking(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	f.api.failWith("GET /api/payments", http.StatusInternalServerError)

	v, err := Mount(context.Background(), f.opts)
	if v != nil {
		t.Fatal("Mount returned a view despite a failed load")
	}
	var tErr *client.TransportError
	if !errors.As(err, &tErr) || tErr.Message != "Server exploded" {
		t.Fatalf("Mount error = %v, want TransportError with server message", err)
	}
	if f.shared.Refs() != 0 || !f.conn.isClosed() {
		t.Errorf("channel not released after failed mount: refs %d", f.shared.Refs())
	}
}

func TestMount_UnknownRole(t *testing.T) {
	f := newFixture(t, auth.Role("owner"), landlordLists)
	if _, err := Mount(context.Background(), f.opts); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("Mount error = %v, want ErrUnknownRole", err)
	}
	if f.shared.Refs() != 0 {
		t.Error("channel acquired for an unknown role")
	}
}

func TestView_PushEventsReachStores(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v := f.mount(t)

	f.conn.emit("property_created", `{"id": 11, "name": "Oak House"}`)
	f.conn.emit("property_updated", `{"id": 10, "name": "Elm Court East"}`)
	f.conn.emit("payment_status", `{"transaction_id": "TX1", "status": "paid", "amount": 1}`)
	f.conn.emit("maintenance_request", `{"title": "no id"}`)
	f.conn.emit("property_deleted", `{"id": 11}`)
	f.conn.emit("user_created", `{"id": 5, "role": "agent"}`)
	f.conn.emit("property_created", `{"id": 14}`)

	eventually(t, "every event applied", func() bool {
		return sameIDs(listIDs(t, v, entity.Property), []int64{10, 14})
	})

	props, _ := v.List(entity.Property)
	if props[0].String("name") != "Elm Court East" {
		t.Errorf("property 10 = %v, want updated name", props[0].Attrs)
	}

	payments, _ := v.List(entity.Payment)
	if payments[0].String("status") != "paid" {
		t.Errorf("payment status = %v, want paid", payments[0].Attrs["status"])
	}
	if amount, _ := entity.GetNumber(payments[0].Attrs, "amount"); amount != 900 {
		t.Errorf("payment_status changed amount to %v", amount)
	}
	if _, err := v.List(entity.User); !errors.Is(err, ErrNotInScope) {
		t.Errorf("landlord view holds users: %v", err)
	}
}

func TestView_TrayReceivesEventsOutsideStoreScope(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v := f.mount(t)

	f.conn.emit("tenant_created", `{"id": 60, "email": "t@x.co", "property_name": "Elm Court"}`)

	eventually(t, "tray line", func() bool { return v.Dashboard().Unread == 1 })

	d := v.Dashboard()
	if !strings.Contains(d.Notifications[0].Message, "t@x.co") {
		t.Errorf("tray line = %q", d.Notifications[0].Message)
	}
	if _, ok := d.Collections["tenancy"]; ok {
		t.Error("tenant_created created a tenancy collection for a landlord")
	}

	v.MarkRead()
	if v.Dashboard().Unread != 0 {
		t.Error("MarkRead did not reset the counter")
	}
}

func TestView_AdminFeedFromPushEvents(t *testing.T) {
	f := newFixture(t, auth.RoleAdmin, adminLists)
	v := f.mount(t)

	f.conn.emit("maintenance_request", `{"id": 31, "title": "Broken door", "priority": "urgent"}`)
	f.conn.emit("tenant_created", `{"id": 22, "email": "t@x.co", "property_name": "Elm Court", "status": "active"}`)

	eventually(t, "feed lines", func() bool { return len(v.Dashboard().Activity) == 2 })

	d := v.Dashboard()
	if d.Summary.ActiveTenancies != 2 {
		t.Errorf("ActiveTenancies = %d, want 2", d.Summary.ActiveTenancies)
	}
	if d.Unread != 2 {
		t.Errorf("Unread = %d, want seed plus one", d.Unread)
	}
}

func TestView_ResyncAfterReconnect(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v := f.mount(t)

	for _, path := range []string{"/api/properties", "/api/maintenance", "/api/payments"} {
		if n := f.api.count("GET " + path); n != 1 {
			t.Fatalf("%s loaded %d times on mount", path, n)
		}
	}

	f.api.mu.Lock()
	f.api.lists["/api/properties"] = `[{"id": 10}, {"id": 12}]`
	f.api.mu.Unlock()

	f.conn.setState(channel.Disconnected)
	f.conn.setState(channel.Reconnecting)
	f.conn.setState(channel.Connected)

	eventually(t, "resync of every store", func() bool {
		return f.api.count("GET /api/properties") == 2 &&
			f.api.count("GET /api/maintenance") == 2 &&
			f.api.count("GET /api/payments") == 2
	})
	eventually(t, "resynced properties", func() bool {
		return sameIDs(listIDs(t, v, entity.Property), []int64{10, 12})
	})
	if n := f.api.count("GET /api/tenants/all"); n != 0 {
		t.Errorf("tray-only type was resynced %d times", n)
	}
}

func TestView_LocalMutations(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v := f.mount(t)
	ctx := context.Background()

	created, err := v.Create(ctx, entity.Property, map[string]any{"name": "Birch"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID != 99 {
		t.Errorf("created id = %d, want 99", created.ID)
	}
	if got := listIDs(t, v, entity.Property); !sameIDs(got, []int64{10, 99}) {
		t.Errorf("after Create ids = %v", got)
	}

	if _, err := v.Update(ctx, entity.Property, 10, map[string]any{"name": "Elm West"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	props, _ := v.List(entity.Property)
	if props[0].String("name") != "Elm West" {
		t.Errorf("after Update = %v", props[0].Attrs)
	}

	f.api.failWith("PUT /api/properties/10", http.StatusInternalServerError)
	if _, err := v.Update(ctx, entity.Property, 10, map[string]any{"name": "Never"}); err == nil {
		t.Fatal("failed Update returned nil error")
	}
	props, _ = v.List(entity.Property)
	if props[0].String("name") != "Elm West" {
		t.Errorf("failed Update changed the store: %v", props[0].Attrs)
	}

	if err := v.Delete(ctx, entity.Property, 99); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := listIDs(t, v, entity.Property); !sameIDs(got, []int64{10}) {
		t.Errorf("after Delete ids = %v", got)
	}

	if _, err := v.Create(ctx, entity.User, map[string]any{}); !errors.Is(err, ErrNotInScope) {
		t.Errorf("Create outside scope = %v", err)
	}
}

func TestView_Refetch(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v := f.mount(t)

	f.api.mu.Lock()
	f.api.lists["/api/maintenance"] = `{"data": []}`
	f.api.mu.Unlock()

	if err := v.Refetch(entity.MaintenanceRequest); err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if got := listIDs(t, v, entity.MaintenanceRequest); len(got) != 0 {
		t.Errorf("after Refetch ids = %v, want none", got)
	}

	f.api.failWith("GET /api/payments", http.StatusBadGateway)
	if err := v.Refetch(entity.Payment); !client.IsRetryable(err) {
		t.Errorf("Refetch error = %v, want retryable", err)
	}
	if got := listIDs(t, v, entity.Payment); !sameIDs(got, []int64{40}) {
		t.Errorf("failed Refetch changed the store: %v", got)
	}

	if err := v.Refetch(entity.AllowedEmail); !errors.Is(err, ErrNotInScope) {
		t.Errorf("Refetch outside scope = %v", err)
	}
}

func TestView_UnmountReleasesEverything(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	v, err := Mount(context.Background(), f.opts)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if f.conn.handlerCount() == 0 {
		t.Fatal("no handlers registered")
	}

	v.Unmount()
	v.Unmount()

	if f.conn.handlerCount() != 0 {
		t.Errorf("%d handlers left after Unmount", f.conn.handlerCount())
	}
	if f.shared.Refs() != 0 || !f.conn.isClosed() {
		t.Error("push channel still held after the only view unmounted")
	}
	if err := v.Refetch(entity.Property); !errors.Is(err, ErrUnmounted) {
		t.Errorf("Refetch after Unmount = %v", err)
	}
	v.Resync(entity.Property)
}

func TestView_SharedChannelAcrossViews(t *testing.T) {
	f := newFixture(t, auth.RoleLandlord, landlordLists)
	first := f.mount(t)
	second, err := Mount(context.Background(), f.opts)
	if err != nil {
		t.Fatalf("second Mount: %v", err)
	}
	if f.shared.Refs() != 2 {
		t.Fatalf("Refs = %d, want 2", f.shared.Refs())
	}

	second.Unmount()
	if f.conn.isClosed() {
		t.Fatal("connection closed while another view still uses it")
	}

	f.conn.emit("property_created", `{"id": 13}`)
	eventually(t, "first view receives events", func() bool {
		return sameIDs(listIDs(t, first, entity.Property), []int64{10, 13})
	})
	if got := listIDs(t, second, entity.Property); !sameIDs(got, []int64{10}) {
		t.Errorf("unmounted view changed: %v", got)
	}
}
