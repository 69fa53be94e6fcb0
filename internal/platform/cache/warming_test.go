package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
)

type funcProvider struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context) (int, error)
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Warmup(ctx context.Context) (int, error) {
	p.calls.Add(1)
	return p.fn(ctx)
}

func loaded(n int) func(context.Context) (int, error) {
	return func(context.Context) (int, error) { return n, nil }
}

func TestWarmer_NoProviders(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), DefaultWarmupConfig())

	results := w.Warmup(context.Background())
	if len(results.Results) != 0 || results.HasErrors() || results.Entries != 0 {
		t.Errorf("Expected empty results, got %+v", results)
	}
}

func TestWarmer_ParallelContinuesOnError(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), DefaultWarmupConfig())

	ok := &funcProvider{name: "faq.yaml", fn: loaded(3)}
	bad := &funcProvider{name: "broken.yaml", fn: func(context.Context) (int, error) { return 1, errors.New("boom") }}
	w.RegisterProvider(ok)
	w.RegisterProvider(bad)

	results := w.Warmup(context.Background())

	if len(results.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results.Results))
	}
	if results.Errors != 1 {
		t.Errorf("Expected 1 error, got %d", results.Errors)
	}
	if results.Entries != 4 {
		t.Errorf("Expected partial entries to count, got %d", results.Entries)
	}
	if ok.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Error("Expected each provider called once")
	}

	t.Log("✓ Parallel warmup reports per-provider results")
}

func TestWarmer_ParallelKeepsRegistrationOrder(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), DefaultWarmupConfig())

	slow := &funcProvider{name: "first", fn: func(context.Context) (int, error) {
		time.Sleep(20 * time.Millisecond)
		return 1, nil
	}}
	fast := &funcProvider{name: "second", fn: loaded(2)}
	w.RegisterProvider(slow)
	w.RegisterProvider(fast)

	results := w.Warmup(context.Background())

	if len(results.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results.Results))
	}
	if results.Results[0].Provider != "first" || results.Results[1].Provider != "second" {
		t.Errorf("Expected registration order, got %s, %s", results.Results[0].Provider, results.Results[1].Provider)
	}
	if results.Results[1].Entries != 2 {
		t.Errorf("Expected 2 entries for second, got %d", results.Results[1].Entries)
	}
}

func TestWarmer_SequentialStopsOnError(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), WarmupConfig{Timeout: time.Second})

	bad := &funcProvider{name: "broken", fn: func(context.Context) (int, error) { return 0, errors.New("boom") }}
	never := &funcProvider{name: "after", fn: loaded(1)}
	w.RegisterProvider(bad)
	w.RegisterProvider(never)

	results := w.Warmup(context.Background())

	if len(results.Results) != 1 {
		t.Fatalf("Expected to stop after first failure, got %d results", len(results.Results))
	}
	if never.calls.Load() != 0 {
		t.Error("Expected second provider to be skipped")
	}
}

func TestWarmer_Timeout(t *testing.T) {
	w := NewWarmer(observability.NewNopLogger(), WarmupConfig{Timeout: 20 * time.Millisecond, Parallel: true, ContinueOnError: true})

	slow := &funcProvider{name: "slow", fn: func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	}}
	w.RegisterProvider(slow)

	results := w.Warmup(context.Background())
	if !results.HasErrors() || !errors.Is(results.Results[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline error, got %+v", results.Results)
	}
}
