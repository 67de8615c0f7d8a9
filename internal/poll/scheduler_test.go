package poll

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/state"
)

type fakeSource struct {
	mu            sync.Mutex
	health        rag.HealthResponse
	healthErr     error
	stats         rag.ServiceStats
	statsErr      error
	progress      rag.TrainingProgress
	progressErr   error
	healthCalls   int
	statsCalls    int
	progressCalls int
}

func (f *fakeSource) Health(ctx context.Context) (rag.HealthResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthCalls++
	return f.health, f.healthErr
}

func (f *fakeSource) Stats(ctx context.Context) (rag.ServiceStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsCalls++
	return f.stats, f.statsErr
}

func (f *fakeSource) TrainingProgress(ctx context.Context) (rag.TrainingProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressCalls++
	return f.progress, f.progressErr
}

func (f *fakeSource) counts() (health, stats, progress int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthCalls, f.statsCalls, f.progressCalls
}

func TestRefreshNow_MergesHealthAndStats(t *testing.T) {
	src := &fakeSource{
		health: rag.HealthResponse{Status: "healthy", ModelLoaded: true, DocumentCount: 12},
		stats:  rag.ServiceStats{TotalQueries: 40, AvgGPTTime: "75.20ms", DocumentCount: 12},
	}
	rec := state.NewReconciler()
	s := NewScheduler(src, rec, nil)

	s.RefreshNow(context.Background())

	got := rec.Stats()
	if got.ServerStatus != "healthy" {
		t.Errorf("ServerStatus = %q, want healthy", got.ServerStatus)
	}
	if got.ModelLoaded != "loaded" {
		t.Errorf("ModelLoaded = %q, want loaded", got.ModelLoaded)
	}
	if got.TotalQueries != 40 || got.AvgResponseTime != "75.20ms" {
		t.Errorf("stats = %+v, want queries 40 avg 75.20ms", got)
	}
	if got.DocumentCount != 12 {
		t.Errorf("DocumentCount = %d, want 12", got.DocumentCount)
	}
}

func TestRefreshNow_SkipsMLOpsWithoutAdmin(t *testing.T) {
	src := &fakeSource{}
	rec := state.NewReconciler()

	admin := false
	s := NewScheduler(src, rec, func() bool { return admin })

	s.RefreshNow(context.Background())
	if _, _, progress := src.counts(); progress != 0 {
		t.Fatalf("progress fetched %d times while hidden, want 0", progress)
	}

	admin = true
	s.RefreshNow(context.Background())
	if _, _, progress := src.counts(); progress != 1 {
		t.Fatalf("progress fetched %d times in admin mode, want 1", progress)
	}
}

func TestRefreshMLOps_DerivesStatus(t *testing.T) {
	src := &fakeSource{progress: rag.TrainingProgress{
		BatchSize:                  50,
		ProgressPercentage:         30,
		CurrentConversations:       15,
		ConversationsUntilTraining: 35,
		CurrentVersion:             "v2",
	}}
	rec := state.NewReconciler()
	s := NewScheduler(src, rec, nil)

	s.RefreshMLOps(context.Background())
	got := rec.MLOps()
	if got.TrainingStatus != state.StatusCollecting {
		t.Errorf("status = %q, want collecting", got.TrainingStatus)
	}
	if got.NewDataCount != 15 || got.PendingCount != 35 || got.BatchSize != 50 {
		t.Errorf("snapshot = %+v", got)
	}
	if got.ModelVersion != "v2" {
		t.Errorf("ModelVersion = %q, want v2", got.ModelVersion)
	}

	src.mu.Lock()
	src.progress.TrainingInProgress = true
	src.mu.Unlock()
	s.RefreshMLOps(context.Background())
	if got := rec.MLOps().TrainingStatus; got != state.StatusTraining {
		t.Errorf("status = %q, want training-in-progress", got)
	}

	src.mu.Lock()
	src.progress.TrainingInProgress = false
	src.progress.ConversationsUntilTraining = 0
	src.mu.Unlock()
	s.RefreshMLOps(context.Background())
	if got := rec.MLOps().TrainingStatus; got != state.StatusReady {
		t.Errorf("status = %q, want ready-to-train", got)
	}
}

func TestRefresh_FailuresLeaveSnapshotUntouched(t *testing.T) {
	src := &fakeSource{
		health: rag.HealthResponse{Status: "healthy", ModelLoaded: true, DocumentCount: 3},
		stats:  rag.ServiceStats{TotalQueries: 7, AvgGPTTime: "90.00ms"},
	}
	rec := state.NewReconciler()
	s := NewScheduler(src, rec, nil)
	s.RefreshNow(context.Background())

	src.mu.Lock()
	src.healthErr = errors.New("connection refused")
	src.statsErr = errors.New("connection refused")
	src.mu.Unlock()

	s.RefreshNow(context.Background())

	got := rec.Stats()
	if got.ServerStatus != "healthy" || got.TotalQueries != 7 {
		t.Errorf("failed poll overwrote snapshot: %+v", got)
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	rec := state.NewReconciler()
	s := NewScheduler(src, rec, nil, WithInterval(10*time.Millisecond))

	s.Start(context.Background())
	s.Start(context.Background()) // second start must not spawn another loop

	deadline := time.Now().Add(2 * time.Second)
	for {
		if h, _, _ := src.counts(); h >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never reached 3 health polls")
		}
		time.Sleep(time.Millisecond)
	}

	s.Stop()
	s.Stop() // idempotent

	h1, _, _ := src.counts()
	time.Sleep(50 * time.Millisecond)
	h2, _, _ := src.counts()
	if h2 != h1 {
		t.Errorf("scheduler kept polling after Stop: %d -> %d", h1, h2)
	}
}
