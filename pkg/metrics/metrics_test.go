package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := customRegistry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestNewManagerIsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(WithPrometheusRegistry(reg), WithNamespace("test"), WithSubsystem("sub"))
	if m == nil {
		t.Fatal("expected non-nil manager")
	}

	m.writesTotal.WithLabelValues("post").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "test_sub_") {
			found = true
		}
	}
	if !found {
		t.Error("expected metrics registered under test_sub_ prefix")
	}
}

func TestGlobalHelpers(t *testing.T) {
	RecordWrite("post")
	RecordWriteError("post", "validation")
	RecordWriteLatency(12.5)
	RecordLikeIncrement()
	UpdateSubscriptionsOpen(3)
	UpdateLiveQueries(1)
	RecordSubscriptionReopen()
	RecordSnapshotDelivered()
	RecordSnapshotDropped()
	RecordSnapshotFanout(2)
	UpdatePendingWrites(1)
	RecordPendingConfirmed()
	RecordPendingRolledBack()
	RecordHTTPRequest("/posts", "POST", "200")
	RecordHTTPRequestDuration("/posts", "POST", "200", 4.2)

	families := gather(t)
	for _, name := range []string{
		"feedsync_engine_writes_total",
		"feedsync_engine_subscriptions_open",
		"feedsync_engine_pending_writes",
		"feedsync_engine_http_requests_total",
	} {
		if _, ok := families[name]; !ok {
			t.Errorf("expected metric family %s to be registered", name)
		}
	}
}

func TestGetRegistry(t *testing.T) {
	if GetRegistry() == nil {
		t.Fatal("expected non-nil registry")
	}
}
