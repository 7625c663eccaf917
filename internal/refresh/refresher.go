// Package refresh keeps stored OIDC key sets in sync with their providers.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/janovincze/idbroker/internal/api/models"
	"github.com/janovincze/idbroker/internal/config"
	"github.com/janovincze/idbroker/internal/metrics"
	"github.com/janovincze/idbroker/internal/oidc"
)

// Per-source outcomes.
const (
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
	ResultInvalid   = "invalid"
)

// Store is the persistence the refresher needs.
type Store interface {
	ListJWKSTargets(ctx context.Context) ([]models.OAuthSource, error)
	UpdateJWKS(ctx context.Context, id uuid.UUID, jwks map[string]any, refreshedAt time.Time) error
}

// Fetcher retrieves a remote JSON document.
type Fetcher interface {
	FetchJSON(ctx context.Context, rawURL string) (map[string]any, error)
}

// Summary counts the outcomes of one run.
type Summary struct {
	Total     int
	Updated   int
	Unchanged int
	Failed    int
	Invalid   int
}

func (s *Summary) add(result string) {
	switch result {
	case ResultUpdated:
		s.Updated++
	case ResultUnchanged:
		s.Unchanged++
	case ResultInvalid:
		s.Invalid++
	default:
		s.Failed++
	}
}

// Refresher re-fetches the key set of every enabled source with a JWKS URL.
type Refresher struct {
	store       Store
	fetcher     Fetcher
	concurrency int
	schedule    string
	runOnStart  bool
	logger      *slog.Logger
	now         func() time.Time

	cron     *cron.Cron
	running  bool
	runMu    sync.Mutex
	startRun sync.WaitGroup
}

// NewRefresher creates a new Refresher.
func NewRefresher(store Store, fetcher Fetcher, cfg config.RefreshConfig, logger *slog.Logger) (*Refresher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		return nil, fmt.Errorf("refresh schedule is required")
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule: %w", err)
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	return &Refresher{
		store:       store,
		fetcher:     fetcher,
		concurrency: concurrency,
		schedule:    cfg.Schedule,
		runOnStart:  cfg.RunOnStart,
		logger:      logger.With("component", "jwks-refresher"),
		now:         time.Now,
	}, nil
}

// Start schedules refresh runs. Runs never overlap; a tick that arrives while
// a run is in progress is skipped.
func (r *Refresher) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.running {
		return fmt.Errorf("refresher is already running")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.schedule, func() { r.run(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	r.logger.Info("starting jwks refresher",
		"schedule", r.schedule,
		"concurrency", r.concurrency,
		"run_on_start", r.runOnStart,
	)

	c.Start()
	r.cron = c
	r.running = true

	if r.runOnStart {
		r.startRun.Add(1)
		go func() {
			defer r.startRun.Done()
			r.run(ctx)
		}()
	}
	return nil
}

// Stop stops scheduling and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	r.runMu.Lock()
	if !r.running {
		r.runMu.Unlock()
		return
	}
	c := r.cron
	r.running = false
	r.runMu.Unlock()

	r.logger.Info("stopping jwks refresher")
	<-c.Stop().Done()
	r.startRun.Wait()
	r.logger.Info("jwks refresher stopped")
}

// IsRunning returns whether runs are scheduled.
func (r *Refresher) IsRunning() bool {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.running
}

func (r *Refresher) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("jwks refresh run failed", "error", err)
	}
}

// RunOnce refreshes every target once. Per-source failures are counted in
// the summary and never abort the run; only listing targets can fail it.
func (r *Refresher) RunOnce(ctx context.Context) (Summary, error) {
	start := r.now()
	defer func() {
		metrics.JWKSRefreshDuration.Observe(time.Since(start).Seconds())
	}()

	targets, err := r.store.ListJWKSTargets(ctx)
	if err != nil {
		metrics.JWKSRefreshRunsTotal.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("failed to list refresh targets: %w", err)
	}

	summary := Summary{Total: len(targets)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, src := range targets {
		src := src
		g.Go(func() error {
			result := r.refreshSource(gctx, src)
			metrics.JWKSRefreshSourcesTotal.WithLabelValues(result).Inc()

			mu.Lock()
			summary.add(result)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck

	metrics.JWKSRefreshRunsTotal.WithLabelValues("success").Inc()
	metrics.JWKSRefreshLastSuccess.SetToCurrentTime()

	r.logger.Info("jwks refresh completed",
		"total", summary.Total,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"invalid", summary.Invalid,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (r *Refresher) refreshSource(ctx context.Context, src models.OAuthSource) string {
	logger := r.logger.With("source", src.Slug, "url", src.OIDCJWKSURL)

	doc, err := r.fetcher.FetchJSON(ctx, src.OIDCJWKSURL)
	if err != nil {
		logger.Warn("failed to fetch key set", "error", err)
		return ResultFailed
	}

	// A document that does not parse as a key set never replaces a good one.
	keys, err := oidc.InspectJWKS(doc)
	if err != nil {
		logger.Warn("fetched key set is invalid", "error", err)
		return ResultInvalid
	}
	if len(keys) == 0 {
		logger.Warn("fetched key set has no keys")
		return ResultInvalid
	}

	if reflect.DeepEqual(doc, src.OIDCJWKS) {
		return ResultUnchanged
	}

	if err := r.store.UpdateJWKS(ctx, src.ID, doc, r.now()); err != nil {
		logger.Error("failed to store key set", "error", err)
		return ResultFailed
	}
	logger.Info("key set updated")
	return ResultUpdated
}
