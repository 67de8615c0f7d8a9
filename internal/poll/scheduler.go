// Package poll runs the fixed-cadence background refresh of service health,
// performance stats and ML-pipeline progress, feeding results into the
// shared state reconciler. Fetch failures are logged and swallowed; the
// cadence never changes and ticks are never retried.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/state"
)

// DefaultInterval is the cadence between background refreshes.
const DefaultInterval = 5 * time.Second

// StatusSource is the subset of the service client the scheduler reads from.
type StatusSource interface {
	Health(ctx context.Context) (rag.HealthResponse, error)
	Stats(ctx context.Context) (rag.ServiceStats, error)
	TrainingProgress(ctx context.Context) (rag.TrainingProgress, error)
}

// Scheduler periodically fetches service status and merges it into the
// reconciler. The ML-pipeline endpoint is only polled while adminProbe
// reports true, but results that land after the probe flips still merge.
type Scheduler struct {
	src        StatusSource
	rec        *state.Reconciler
	adminProbe func() bool
	interval   time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the default refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger for swallowed fetch failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// NewScheduler builds a stopped scheduler. adminProbe gates the ML-pipeline
// fetch; pass nil to never poll it in the background.
func NewScheduler(src StatusSource, rec *state.Reconciler, adminProbe func() bool, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:        src,
		rec:        rec,
		adminProbe: adminProbe,
		interval:   DefaultInterval,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the background loop. The first refresh runs immediately,
// then one per interval. Starting an already running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	stopped := make(chan struct{})
	s.stopped = stopped

	go func() {
		defer close(stopped)
		s.RefreshNow(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RefreshNow(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight tick to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, stopped := s.cancel, s.stopped
	s.cancel, s.stopped = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-stopped
}

// RefreshNow fetches health and stats concurrently, plus ML-pipeline
// progress when the admin probe allows it. Each fetch failure is logged
// and dropped without touching the snapshot.
func (s *Scheduler) RefreshNow(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.refreshHealth(ctx)
		return nil
	})
	g.Go(func() error {
		s.refreshStats(ctx)
		return nil
	})
	if s.adminProbe != nil && s.adminProbe() {
		g.Go(func() error {
			s.RefreshMLOps(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Scheduler) refreshHealth(ctx context.Context) {
	health, err := s.src.Health(ctx)
	if err != nil {
		s.logger.Warn("health poll failed", "error", err)
		return
	}
	loaded := "not loaded"
	if health.ModelLoaded {
		loaded = "loaded"
	}
	s.rec.MergeStats(state.StatsUpdate{
		ServerStatus:  state.Ptr(health.Status),
		ModelLoaded:   state.Ptr(loaded),
		DocumentCount: state.Ptr(health.DocumentCount),
	})
}

func (s *Scheduler) refreshStats(ctx context.Context) {
	stats, err := s.src.Stats(ctx)
	if err != nil {
		s.logger.Warn("stats poll failed", "error", err)
		return
	}
	upd := state.StatsUpdate{
		TotalQueries:  state.Ptr(stats.TotalQueries),
		DocumentCount: state.Ptr(stats.DocumentCount),
	}
	if stats.AvgGPTTime != "" {
		upd.AvgResponseTime = state.Ptr(stats.AvgGPTTime)
	}
	s.rec.MergeStats(upd)
}

// RefreshMLOps fetches training progress once, regardless of the admin
// probe. The session layer calls this directly when admin mode is entered
// or a manual refresh is requested.
func (s *Scheduler) RefreshMLOps(ctx context.Context) {
	progress, err := s.src.TrainingProgress(ctx)
	if err != nil {
		s.logger.Warn("training progress poll failed", "error", err)
		return
	}
	ready := progress.BatchSize > 0 && progress.ConversationsUntilTraining <= 0
	status := state.DeriveTrainingStatus(false, progress.TrainingInProgress, false, ready)
	upd := state.MLOpsUpdate{
		NewDataCount:    state.Ptr(progress.CurrentConversations),
		PendingCount:    state.Ptr(progress.ConversationsUntilTraining),
		BatchSize:       state.Ptr(progress.BatchSize),
		ProgressPercent: state.Ptr(progress.ProgressPercentage),
		TrainingStatus:  state.Ptr(status),
	}
	if progress.CurrentVersion != "" {
		upd.ModelVersion = state.Ptr(progress.CurrentVersion)
	}
	s.rec.MergeMLOps(upd)
}
