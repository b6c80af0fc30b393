package health

import (
	"context"
	"testing"
	"time"
)

func stubChecker(name string, status Status) Checker {
	return CheckFunc{
		CheckerName: name,
		Fn: func(ctx context.Context) CheckResult {
			return CheckResult{Status: status, Latency: time.Millisecond}
		},
	}
}

func TestAggregator_AllHealthy(t *testing.T) {
	agg := NewAggregator(
		stubChecker("database", StatusHealthy),
		stubChecker("outbound_queue", StatusHealthy),
	)

	if got := agg.OverallStatus(context.Background()); got != StatusHealthy {
		t.Fatalf("overall = %v, want healthy", got)
	}
	if !agg.Ready(context.Background()) {
		t.Fatal("all healthy must be ready")
	}
}

func TestAggregator_DegradedStaysReady(t *testing.T) {
	agg := NewAggregator(
		stubChecker("database", StatusHealthy),
		stubChecker("outbound_queue", StatusDegraded),
	)

	if got := agg.OverallStatus(context.Background()); got != StatusDegraded {
		t.Fatalf("overall = %v, want degraded", got)
	}
	if !agg.Ready(context.Background()) {
		t.Fatal("degraded must stay ready")
	}
}

func TestAggregator_UnhealthyNotReady(t *testing.T) {
	agg := NewAggregator(
		stubChecker("database", StatusHealthy),
		stubChecker("redis", StatusUnhealthy),
	)

	if got := agg.OverallStatus(context.Background()); got != StatusUnhealthy {
		t.Fatalf("overall = %v, want unhealthy", got)
	}
	if agg.Ready(context.Background()) {
		t.Fatal("unhealthy must not be ready")
	}
}

func TestAggregator_CheckAllAndAdd(t *testing.T) {
	agg := NewAggregator(stubChecker("database", StatusHealthy))
	agg.AddChecker(stubChecker("outbound_queue", StatusHealthy))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	for name, result := range results {
		if result.Status != StatusHealthy {
			t.Errorf("%s status = %v, want healthy", name, result.Status)
		}
	}
}

func TestAggregator_ReportWorstWins(t *testing.T) {
	agg := NewAggregator(
		stubChecker("database", StatusDegraded),
		stubChecker("redis", StatusHealthy),
	)

	report := agg.Report(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("report status = %v, want degraded", report.Status)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("report checks = %d, want 2", len(report.Checks))
	}
	if report.Timestamp.IsZero() {
		t.Fatal("report timestamp must be set")
	}
}

func TestAggregator_Alive(t *testing.T) {
	if !NewAggregator().Alive() {
		t.Fatal("alive must report true")
	}
}
