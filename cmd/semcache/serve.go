package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Subhagatoadak/SemanticCaching/internal/platform/observability"
	"github.com/Subhagatoadak/SemanticCaching/internal/semcache"
)

const maxBodyBytes = 1 << 20

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the cache over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if port == 0 {
					port = a.cfg.HTTP.Port
				}
				return serve(ctx, a, port)
			})
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default http.port from config)")
	return cmd
}

func serve(ctx context.Context, a *app, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           newHandler(a.cache, a.ping, a.metrics, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-sigCh:
		a.logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

type handler struct {
	cache  *semcache.Cache[string]
	ping   func(ctx context.Context) error
	logger *observability.Logger
}

type putRequest struct {
	Query string `json:"query"`
	Value string `json:"value"`
}

type lookupResponse struct {
	Query       string  `json:"query"`
	Value       string  `json:"value"`
	Tier        string  `json:"tier"`
	Fingerprint string  `json:"fingerprint"`
	MatchedKey  string  `json:"matched_key,omitempty"`
	Score       float32 `json:"score,omitempty"`
}

type statsResponse struct {
	Memory struct {
		Size      int   `json:"size"`
		Capacity  int   `json:"capacity"`
		Hits      int64 `json:"hits"`
		Misses    int64 `json:"misses"`
		Evictions int64 `json:"evictions"`
	} `json:"memory"`
	Lookups  map[string]int64 `json:"lookups"`
	Degraded int64            `json:"degraded"`
	Index    int              `json:"index_size"`
}

// newHandler routes the cache API plus /health, /ready and /metrics.
func newHandler(c *semcache.Cache[string], ping func(context.Context) error, metrics *observability.Metrics, logger *observability.Logger) http.Handler {
	h := &handler{cache: c, ping: ping, logger: logger.Named("http")}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/cache", h.get)
	mux.HandleFunc("PUT /v1/cache", h.put)
	mux.HandleFunc("DELETE /v1/cache", h.invalidate)
	mux.HandleFunc("GET /v1/stats", h.stats)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/ready", h.ready)
	mux.Handle("/metrics", metrics.Handler())

	return mux
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	res := h.cache.Lookup(r.Context(), query)
	if !res.Found {
		writeError(w, http.StatusNotFound, "not cached")
		return
	}

	writeJSON(w, http.StatusOK, lookupResponse{
		Query:       query,
		Value:       res.Value,
		Tier:        res.Tier.String(),
		Fingerprint: h.cache.Fingerprint(query),
		MatchedKey:  res.MatchedKey,
		Score:       res.Score,
	})
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	var req putRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	if err := h.cache.Set(r.Context(), req.Query, req.Value); err != nil {
		h.logger.LogError(r.Context(), "set failed", err)
		writeError(w, http.StatusServiceUnavailable, "durable store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"fingerprint": h.cache.Fingerprint(req.Query)})
}

func (h *handler) invalidate(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	if err := h.cache.Invalidate(r.Context(), query); err != nil {
		h.logger.LogError(r.Context(), "invalidate failed", err)
		writeError(w, http.StatusServiceUnavailable, "durable store unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	s := h.cache.Stats()

	var resp statsResponse
	resp.Memory.Size = s.Memory.Size
	resp.Memory.Capacity = s.Memory.Capacity
	resp.Memory.Hits = s.Memory.Hits
	resp.Memory.Misses = s.Memory.Misses
	resp.Memory.Evictions = s.Memory.Evictions
	resp.Lookups = map[string]int64{
		semcache.TierMemory.String():   s.Lookups.Memory,
		semcache.TierDurable.String():  s.Lookups.Durable,
		semcache.TierSemantic.String(): s.Lookups.Semantic,
		semcache.TierMiss.String():     s.Lookups.Miss,
	}
	resp.Degraded = s.Degraded
	resp.Index = s.IndexSize

	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			h.logger.LogWarn(ctx, "readiness check failed", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
