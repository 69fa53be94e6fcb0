package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/cache"
	"github.com/Subhagatoadak/SemanticCaching/internal/platform/config"
	"github.com/Subhagatoadak/SemanticCaching/internal/semcache"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "semcache",
		Short:         "Semantic cache for query/response pairs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./config/semcache.yaml or ./semcache.yaml)")

	root.AddCommand(
		newGetCmd(),
		newSetCmd(),
		newInvalidateCmd(),
		newStatsCmd(),
		newWarmCmd(),
		newDemoCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads config, builds the cache, runs fn and tears everything down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	runErr := fn(ctx, a)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		a.logger.LogWarn(shutdownCtx, "shutdown incomplete", err)
	}
	return runErr
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <query>",
		Short: "Look a query up, falling back to semantic matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				r := a.cache.Lookup(ctx, args[0])
				if !r.Found {
					return fmt.Errorf("no cached response for %q", args[0])
				}
				fmt.Fprintln(cmd.OutOrStdout(), r.Value)
				return nil
			})
		},
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <query> <value>",
		Short: "Cache a response for a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.cache.Set(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", a.cache.Fingerprint(args[0]))
				return nil
			})
		},
	}
}

func newInvalidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <query>",
		Short: "Remove a query from the exact tiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.cache.Invalidate(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", a.cache.Fingerprint(args[0]))
				return nil
			})
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache counters for this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				printStats(cmd, a.cache.Stats())
				return nil
			})
		},
	}
}

func printStats(cmd *cobra.Command, s semcache.Stats) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METRIC\tVALUE")
	fmt.Fprintf(w, "memory.size\t%d/%d\n", s.Memory.Size, s.Memory.Capacity)
	fmt.Fprintf(w, "memory.hits\t%d\n", s.Memory.Hits)
	fmt.Fprintf(w, "memory.misses\t%d\n", s.Memory.Misses)
	fmt.Fprintf(w, "memory.evictions\t%d\n", s.Memory.Evictions)
	fmt.Fprintf(w, "lookups.memory\t%d\n", s.Lookups.Memory)
	fmt.Fprintf(w, "lookups.durable\t%d\n", s.Lookups.Durable)
	fmt.Fprintf(w, "lookups.semantic\t%d\n", s.Lookups.Semantic)
	fmt.Fprintf(w, "lookups.miss\t%d\n", s.Lookups.Miss)
	fmt.Fprintf(w, "degraded\t%d\n", s.Degraded)
	fmt.Fprintf(w, "index.size\t%d\n", s.IndexSize)
	w.Flush()
}

func newWarmCmd() *cobra.Command {
	var (
		timeout  time.Duration
		parallel bool
	)

	cmd := &cobra.Command{
		Use:   "warm <seed.yaml>...",
		Short: "Load query/response seeds into the cache",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				warmer := cache.NewWarmer(a.logger, cache.WarmupConfig{
					Timeout:         timeout,
					ContinueOnError: true,
					Parallel:        parallel,
				})
				for _, path := range args {
					warmer.RegisterProvider(semcache.NewSeedProvider(a.cache, path))
				}

				results := warmer.Warmup(ctx)
				for _, r := range results.Results {
					status := "ok"
					if r.Err != nil {
						status = r.Err.Error()
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d entries\t%s\t%s\n", r.Provider, r.Entries, r.Duration.Round(time.Millisecond), status)
				}
				if results.HasErrors() {
					return fmt.Errorf("warmup finished with errors")
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "overall warmup timeout")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "load seed files concurrently")
	return cmd
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Store, match and invalidate a sample query",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return runDemo(ctx, cmd, a.cache)
			})
		},
	}
}

func runDemo(ctx context.Context, cmd *cobra.Command, c *semcache.Cache[string]) error {
	out := cmd.OutOrStdout()

	if err := c.Reset(ctx); err != nil {
		return err
	}

	query := "What is the weather today?"
	response := "It's sunny and 25°C."

	if err := c.Set(ctx, query, response); err != nil {
		return err
	}
	fmt.Fprintf(out, "Stored in cache: %s -> %s\n", query, response)

	if v, ok := c.Get(ctx, query); ok {
		fmt.Fprintf(out, "Retrieved from cache: %s\n", v)
	}

	similar := "Tell me today's weather"
	if r := c.Lookup(ctx, similar); r.Found {
		fmt.Fprintf(out, "Retrieved similar response: %s (score %.3f)\n", r.Value, r.Score)
	} else {
		fmt.Fprintf(out, "No similar cached response found for: %s\n", similar)
	}

	if err := c.Invalidate(ctx, query); err != nil {
		return err
	}
	fmt.Fprintf(out, "Invalidated cache for query: %s\n", query)

	if v, ok := c.Get(ctx, query); ok {
		fmt.Fprintf(out, "Unexpected retrieval after deletion: %s\n", v)
	} else {
		fmt.Fprintf(out, "Cache successfully invalidated. No response found for: %s\n", query)
	}

	printStats(cmd, c.Stats())
	return nil
}
