package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type staticToken string

func (s staticToken) BearerToken() (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) BearerToken() (string, error) { return "", errors.New("no credential") }

func testSettings() *Settings {
	s := DefaultSettings()
	s.InitialBackoff = 10 * time.Millisecond
	s.MaxBackoff = 50 * time.Millisecond
	s.PingInterval = 50 * time.Millisecond
	return s
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket"
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

// scriptedServer sends or drops on command so the test controls timing
func scriptedServer(t *testing.T, cmds <-chan string, auths chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths <- r.Header.Get("Authorization")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := conns.Add(1)

		for cmd := range cmds {
			switch cmd {
			case "send":
				msg, _ := EncodeFrame("property_created", map[string]any{"id": n})
				if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case "garbage":
				_ = ws.WriteMessage(websocket.TextMessage, []byte("{not json"))
			case "drop":
				return
			}
		}
	}))
}

func TestClient_DeliversFramesAcrossReconnect(t *testing.T) {
	cmds := make(chan string)
	auths := make(chan string, 8)
	srv := scriptedServer(t, cmds, auths)
	defer srv.Close()
	defer close(cmds)

	c := Dial(context.Background(), wsURL(srv), staticToken("tok-1"), testSettings())
	defer c.Close()

	frames := make(chan Frame, 8)
	off := c.On("property_created", func(f Frame) { frames <- f })
	defer off()

	states := make(chan State, 32)
	c.WatchState(func(s State) { states <- s })

	waitState(t, states, Connected)
	if got := <-auths; got != "Bearer tok-1" {
		t.Errorf("Authorization = %q", got)
	}

	cmds <- "garbage"
	cmds <- "send"
	select {
	case f := <-frames:
		var body map[string]any
		_ = json.Unmarshal(f.Data, &body)
		if body["id"] != float64(1) || f.ReceivedAt.IsZero() {
			t.Errorf("frame = %+v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from first connection")
	}

	cmds <- "drop"
	waitState(t, states, Disconnected)
	waitState(t, states, Reconnecting)
	waitState(t, states, Connected)

	cmds <- "send"
	select {
	case f := <-frames:
		var body map[string]any
		_ = json.Unmarshal(f.Data, &body)
		if body["id"] != float64(2) {
			t.Errorf("frame after reconnect = %s", f.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not survive the reconnect")
	}
}

func TestClient_OffStopsDelivery(t *testing.T) {
	cmds := make(chan string)
	auths := make(chan string, 8)
	srv := scriptedServer(t, cmds, auths)
	defer srv.Close()
	defer close(cmds)

	c := Dial(context.Background(), wsURL(srv), nil, testSettings())
	defer c.Close()

	var calls atomic.Int32
	off := c.On("property_created", func(Frame) { calls.Add(1) })
	seen := make(chan struct{}, 1)
	c.On("property_created", func(Frame) { seen <- struct{}{} })

	states := make(chan State, 32)
	c.WatchState(func(s State) { states <- s })
	waitState(t, states, Connected)

	off()
	cmds <- "send"
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("remaining handler not called")
	}
	if calls.Load() != 0 {
		t.Errorf("deregistered handler called %d times", calls.Load())
	}
}

func TestClient_CloseWhileRetrying(t *testing.T) {
	c := Dial(context.Background(), "ws://127.0.0.1:1/socket", failingToken{}, testSettings())

	states := make(chan State, 64)
	c.WatchState(func(s State) { states <- s })

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if c.State() != Disconnected {
		t.Errorf("state after Close = %s", c.State())
	}
}

type fakeConn struct {
	closed atomic.Int32
}

func (f *fakeConn) On(string, Handler) func()        { return func() {} }
func (f *fakeConn) WatchState(fn func(State)) func() { fn(Connected); return func() {} }
func (f *fakeConn) Close()                           { f.closed.Add(1) }

func TestShared_LastReleaseCloses(t *testing.T) {
	var opened []*fakeConn
	s := NewShared(func() Conn {
		c := &fakeConn{}
		opened = append(opened, c)
		return c
	})

	a := s.Acquire()
	b := s.Acquire()
	if len(opened) != 1 || s.Refs() != 2 {
		t.Fatalf("opened %d connections, refs %d", len(opened), s.Refs())
	}

	a.Release()
	a.Release()
	if opened[0].closed.Load() != 0 {
		t.Fatal("connection closed while still referenced")
	}
	if s.Refs() != 1 {
		t.Errorf("double Release should count once, refs = %d", s.Refs())
	}

	b.Release()
	if opened[0].closed.Load() != 1 {
		t.Error("last release should close the connection")
	}

	c := s.Acquire()
	defer c.Release()
	if len(opened) != 2 {
		t.Error("acquire after full release should open a new connection")
	}
}
