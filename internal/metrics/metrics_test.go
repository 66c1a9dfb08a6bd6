package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEvent(t *testing.T) {
	c := eventsTotal.WithLabelValues("payment", "updated", "applied")
	before := testutil.ToFloat64(c)

	Event("payment", "updated", "applied")
	Event("payment", "updated", "applied")

	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Errorf("counter delta = %v, want 2", got)
	}
}

func TestSnapshotLoad(t *testing.T) {
	ok := snapshotLoadsTotal.WithLabelValues("property", "ok")
	failed := snapshotLoadsTotal.WithLabelValues("property", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	SnapshotLoad("property", time.Now(), nil)
	SnapshotLoad("property", time.Now(), errors.New("boom"))

	if testutil.ToFloat64(ok)-okBefore != 1 || testutil.ToFloat64(failed)-failedBefore != 1 {
		t.Error("expected one ok and one error load")
	}
}

func TestChannelConnected(t *testing.T) {
	ChannelConnected(true)
	if testutil.ToFloat64(channelConnected) != 1 {
		t.Error("gauge should be 1 when connected")
	}
	ChannelConnected(false)
	if testutil.ToFloat64(channelConnected) != 0 {
		t.Error("gauge should be 0 when disconnected")
	}
}

func TestHandler(t *testing.T) {
	MalformedEvent("user_created")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `propsync_malformed_events_total{event="user_created"}`) {
		t.Errorf("metrics output missing malformed counter:\n%s", body)
	}
}
