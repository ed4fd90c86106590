package observe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"iris/internal/turn"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q: data is %T", name, m.Data)
	}
	for _, dp := range sum.DataPoints {
		if !attr.Valid() {
			return dp.Value
		}
		if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
			return dp.Value
		}
	}
	return 0
}

func TestObserve_TurnEvents(t *testing.T) {
	m, reader := newTestMetrics(t)

	events := []turn.Event{
		{Prev: turn.Idle, State: turn.WakeDetected, Keyword: 1, Elapsed: 3 * time.Second},
		{Prev: turn.WakeDetected, State: turn.Capturing, Elapsed: 10 * time.Millisecond},
		{Prev: turn.Capturing, State: turn.Transcribing, Elapsed: 2 * time.Second},
		{Prev: turn.Transcribing, State: turn.Responding, Elapsed: 400 * time.Millisecond},
		{Prev: turn.Responding, State: turn.Speaking, Elapsed: 900 * time.Millisecond},
		{Prev: turn.Speaking, State: turn.Idle, Outcome: turn.Fallback, Elapsed: time.Second},
		{Prev: turn.Idle, State: turn.Stopped, Outcome: turn.Interrupted},
	}
	for _, e := range events {
		m.Observe(e)
	}
	rm := collect(t, reader)

	if got := counterValue(t, rm, "iris.wake.detections", attribute.Int("keyword", 1)); got != 1 {
		t.Errorf("wake detections = %d, want 1", got)
	}
	if got := counterValue(t, rm, "iris.turns", attribute.String("outcome", "fallback")); got != 1 {
		t.Errorf("fallback turns = %d, want 1", got)
	}
	if got := counterValue(t, rm, "iris.turns", attribute.String("outcome", "interrupted")); got != 1 {
		t.Errorf("interrupted turns = %d, want 1", got)
	}
	if got := counterValue(t, rm, "iris.dialogue.fallbacks", attribute.KeyValue{}); got != 1 {
		t.Errorf("dialogue fallbacks = %d, want 1", got)
	}

	hm := findMetric(rm, "iris.stage.duration")
	if hm == nil {
		t.Fatal("iris.stage.duration not found")
	}
	hist, ok := hm.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("stage duration data is %T", hm.Data)
	}
	stages := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		v, _ := dp.Attributes.Value("stage")
		stages[v.AsString()] += dp.Count
	}
	if stages["idle"] != 2 || stages["capturing"] != 1 || stages["speaking"] != 1 {
		t.Errorf("stage counts = %v", stages)
	}
}

func TestHandler_Healthz(t *testing.T) {
	t.Parallel()
	var healthErr error
	srv := httptest.NewServer(Handler(func() error { return healthErr }))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}

	healthErr = errors.New("controller stopped")
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d, want 503", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", resp.StatusCode)
	}
}
