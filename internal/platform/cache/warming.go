package cache

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
)

// WarmupProvider preloads entries, typically query/response seeds, before
// traffic arrives.
type WarmupProvider interface {
	Name() string

	// Warmup writes the provider's entries and reports how many landed.
	// Running it twice must leave the cache in the same state.
	Warmup(ctx context.Context) (int, error)
}

// WarmupConfig controls a Warmer run.
type WarmupConfig struct {
	// Timeout bounds the whole run, not each provider.
	Timeout time.Duration

	// ContinueOnError keeps going after a provider fails.
	ContinueOnError bool

	// Parallel runs providers concurrently.
	Parallel bool
}

// DefaultWarmupConfig returns a 30s parallel run that tolerates failures.
func DefaultWarmupConfig() WarmupConfig {
	return WarmupConfig{
		Timeout:         30 * time.Second,
		ContinueOnError: true,
		Parallel:        true,
	}
}

// WarmupResult is the outcome for one provider.
type WarmupResult struct {
	Provider string
	Entries  int
	Duration time.Duration
	Err      error
}

// WarmupResults holds one result per provider that ran, in registration
// order.
type WarmupResults struct {
	Results   []WarmupResult
	Entries   int
	TotalTime time.Duration
	Errors    int
}

// HasErrors reports whether any provider failed.
func (wr *WarmupResults) HasErrors() bool {
	return wr.Errors > 0
}

// Warmer runs the registered providers under one timeout.
type Warmer struct {
	providers []WarmupProvider
	logger    *observability.Logger
	config    WarmupConfig
}

func NewWarmer(logger *observability.Logger, config WarmupConfig) *Warmer {
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmupConfig().Timeout
	}
	return &Warmer{logger: logger.Named("warmer"), config: config}
}

func (w *Warmer) RegisterProvider(provider WarmupProvider) {
	w.providers = append(w.providers, provider)
}

// Warmup runs every provider and summarizes the outcome. Failures are
// reported in the results, never returned.
func (w *Warmer) Warmup(ctx context.Context) *WarmupResults {
	start := time.Now()
	results := &WarmupResults{}

	if len(w.providers) == 0 {
		return results
	}

	runCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.config.Parallel {
		results.Results = w.runParallel(runCtx)
	} else {
		results.Results = w.runSequential(runCtx)
	}

	for _, r := range results.Results {
		results.Entries += r.Entries
		if r.Err != nil {
			results.Errors++
		}
	}
	results.TotalTime = time.Since(start)

	if results.Errors > 0 {
		w.logger.LogWarn(ctx, "warmup finished with errors", nil,
			"failed_providers", results.Errors,
			"providers", len(results.Results),
			"entries", results.Entries,
			"duration", results.TotalTime,
		)
	} else {
		w.logger.LogInfo(ctx, "warmup finished",
			"providers", len(results.Results),
			"entries", results.Entries,
			"duration", results.TotalTime,
		)
	}

	return results
}

// runParallel gives each provider its own result slot. Without
// ContinueOnError the first failure cancels the rest, and providers that
// never started are left out.
func (w *Warmer) runParallel(ctx context.Context) []WarmupResult {
	g, gctx := errgroup.WithContext(ctx)

	slots := make([]WarmupResult, len(w.providers))
	ran := make([]bool, len(w.providers))

	for i, provider := range w.providers {
		g.Go(func() error {
			if !w.config.ContinueOnError && gctx.Err() != nil {
				return nil
			}
			slots[i] = w.run(gctx, provider)
			ran[i] = true
			if !w.config.ContinueOnError {
				return slots[i].Err
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]WarmupResult, 0, len(slots))
	for i, r := range slots {
		if ran[i] {
			results = append(results, r)
		}
	}
	return results
}

func (w *Warmer) runSequential(ctx context.Context) []WarmupResult {
	results := make([]WarmupResult, 0, len(w.providers))

	for _, provider := range w.providers {
		r := w.run(ctx, provider)
		results = append(results, r)
		if r.Err != nil && !w.config.ContinueOnError {
			break
		}
	}
	return results
}

func (w *Warmer) run(ctx context.Context, provider WarmupProvider) WarmupResult {
	start := time.Now()
	name := provider.Name()

	n, err := provider.Warmup(ctx)
	r := WarmupResult{Provider: name, Entries: n, Duration: time.Since(start), Err: err}

	if err != nil {
		w.logger.LogWarn(ctx, "provider failed", err, "provider", name, "entries", n, "duration", r.Duration)
	} else {
		w.logger.LogDebug(ctx, "provider done", "provider", name, "entries", n, "duration", r.Duration)
	}
	return r
}
