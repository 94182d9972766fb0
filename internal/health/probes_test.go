package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestProbeRunnerAllHealthy(t *testing.T) {
	runner := NewProbeRunner(time.Second,
		Probe{Name: "sessions-table", Check: func(context.Context) error { return nil }},
		Probe{Name: "challenge-store", Check: func(context.Context) error { return nil }},
	)
	ready, results := runner.Ready(context.Background())
	if !ready {
		t.Fatal("expected ready")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Status != "ok" || res.Error != "" {
			t.Fatalf("unexpected result %+v", res)
		}
	}
}

func TestProbeRunnerReportsFailures(t *testing.T) {
	runner := NewProbeRunner(time.Second,
		Probe{Name: "sessions-table", Check: func(context.Context) error { return nil }},
		Probe{Name: "messages-table", Check: func(context.Context) error { return errors.New("table missing") }},
	)
	ready, results := runner.Ready(context.Background())
	if ready {
		t.Fatal("expected not ready")
	}
	var failed *Result
	for i := range results {
		if results[i].Name == "messages-table" {
			failed = &results[i]
		}
	}
	if failed == nil || failed.Status != "unavailable" || failed.Error != "table missing" {
		t.Fatalf("unexpected failure result %+v", failed)
	}
}
