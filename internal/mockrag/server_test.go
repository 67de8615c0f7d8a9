package mockrag

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/storage"
)

// newTestService spins up the mock service and a real client pointed at it.
func newTestService(t *testing.T, opts ...Option) (*rag.Client, *Server) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := NewServer(store, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return rag.New(ts.URL), srv
}

func TestHealth(t *testing.T) {
	client, _ := newTestService(t)

	got, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if got.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", got.Status)
	}
	if !got.ModelLoaded {
		t.Error("ModelLoaded = false, want true")
	}
	if got.DocumentCount != len(seedDocuments) {
		t.Errorf("DocumentCount = %d, want %d", got.DocumentCount, len(seedDocuments))
	}
}

func TestChat_FullMetadata(t *testing.T) {
	client, _ := newTestService(t)

	got, err := client.Chat(context.Background(), "how does vector search rank documents", "default")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.Response == "" {
		t.Fatal("empty response")
	}
	if len(got.SearchResults) != 3 {
		t.Fatalf("got %d search results, want 3", len(got.SearchResults))
	}
	for i, r := range got.SearchResults {
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d, want %d", i, r.Rank, i+1)
		}
	}
	// The vector-search doc should win the ranking for this query.
	if got.SearchResults[0].Score <= got.SearchResults[2].Score {
		t.Errorf("results not score-ordered: %v vs %v", got.SearchResults[0].Score, got.SearchResults[2].Score)
	}
	if got.Timing == nil || got.Timing.Total == "" {
		t.Error("missing timing block")
	}
	if got.Stats == nil || got.Stats.TotalQueries != 1 {
		t.Errorf("stats = %+v, want TotalQueries 1", got.Stats)
	}
	if got.MLOpsInfo == nil {
		t.Fatal("missing mlops_info block")
	}
	if !got.MLOpsInfo.Collected {
		t.Error("qualifying exchange was not collected")
	}
	if got.MLOpsInfo.CurrentVersion != "v1" {
		t.Errorf("CurrentVersion = %q, want v1", got.MLOpsInfo.CurrentVersion)
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	client, _ := newTestService(t)

	_, err := client.Chat(context.Background(), "   ", "default")
	if err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestCollector_FiltersShortAndSystemMessages(t *testing.T) {
	client, srv := newTestService(t)

	// Too short to qualify as training data.
	got, err := client.Chat(context.Background(), "hi", "default")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.MLOpsInfo.Collected {
		t.Error("two-character message was collected")
	}

	// Mentions the service itself.
	got, err = client.Chat(context.Background(), "why does the health check fail sometimes", "default")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got.MLOpsInfo.Collected {
		t.Error("system-keyword message was collected")
	}

	total, err := srv.store.CountConversations()
	if err != nil {
		t.Fatalf("CountConversations: %v", err)
	}
	if total != 0 {
		t.Errorf("store has %d conversations, want 0", total)
	}
}

func TestMemory_AppendsAndClears(t *testing.T) {
	client, _ := newTestService(t)

	if _, err := client.Chat(context.Background(), "remember this exchange", "default"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	mem, err := client.Memory(context.Background())
	if err != nil {
		t.Fatalf("Memory: %v", err)
	}
	if mem.Count != 2 {
		t.Errorf("memory count = %d, want 2", mem.Count)
	}
	if mem.MaxCount != defaultMaxMemory {
		t.Errorf("max_count = %d, want %d", mem.MaxCount, defaultMaxMemory)
	}

	if err := client.ClearMemory(context.Background()); err != nil {
		t.Fatalf("ClearMemory: %v", err)
	}
	mem, err = client.Memory(context.Background())
	if err != nil {
		t.Fatalf("Memory after clear: %v", err)
	}
	if mem.Count != 0 {
		t.Errorf("memory count after clear = %d, want 0", mem.Count)
	}
}

func TestMemory_TrimsToMax(t *testing.T) {
	client, srv := newTestService(t)

	for i := 0; i < defaultMaxMemory; i++ {
		if _, err := client.Chat(context.Background(), fmt.Sprintf("turn number %d please", i), "default"); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	srv.mu.Lock()
	n := len(srv.memory)
	srv.mu.Unlock()
	if n != defaultMaxMemory {
		t.Errorf("memory holds %d messages, want %d", n, defaultMaxMemory)
	}
}

func TestStats_RunningAverages(t *testing.T) {
	client, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := client.Chat(context.Background(), fmt.Sprintf("question about documents %d", i), "default"); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	got, err := client.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got.TotalQueries != 3 {
		t.Errorf("TotalQueries = %d, want 3", got.TotalQueries)
	}
	if got.AvgGPTTime == "" {
		t.Error("AvgGPTTime is empty")
	}
	// Every exchange is embedded into the corpus.
	if got.DocumentCount != len(seedDocuments)+3 {
		t.Errorf("DocumentCount = %d, want %d", got.DocumentCount, len(seedDocuments)+3)
	}
}

func TestTrainingProgress_CountsTowardBatch(t *testing.T) {
	client, _ := newTestService(t, WithBatchSize(4))

	for i := 0; i < 2; i++ {
		if _, err := client.Chat(context.Background(), fmt.Sprintf("a perfectly ordinary question %d", i), "default"); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	got, err := client.TrainingProgress(context.Background())
	if err != nil {
		t.Fatalf("TrainingProgress: %v", err)
	}
	if got.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want 4", got.BatchSize)
	}
	if got.CurrentConversations != 2 {
		t.Errorf("CurrentConversations = %d, want 2", got.CurrentConversations)
	}
	if got.ConversationsUntilTraining != 2 {
		t.Errorf("ConversationsUntilTraining = %d, want 2", got.ConversationsUntilTraining)
	}
	if got.ProgressPercentage != 50 {
		t.Errorf("ProgressPercentage = %v, want 50", got.ProgressPercentage)
	}
	if got.TrainingInProgress {
		t.Error("TrainingInProgress = true with a half-filled batch")
	}
}

func TestAutoTraining_TriggersOnFullBatch(t *testing.T) {
	client, _ := newTestService(t, WithBatchSize(2), WithTrainingDelay(10*time.Millisecond))

	first, err := client.Chat(context.Background(), "collected conversation number one", "default")
	if err != nil {
		t.Fatalf("Chat 1: %v", err)
	}
	if first.MLOpsInfo.TrainingTriggered {
		t.Error("training triggered before the batch was full")
	}

	second, err := client.Chat(context.Background(), "collected conversation number two", "default")
	if err != nil {
		t.Fatalf("Chat 2: %v", err)
	}
	if !second.MLOpsInfo.TrainingTriggered {
		t.Fatal("full batch did not trigger training")
	}

	// The pass completes and bumps the model version.
	deadline := time.Now().Add(2 * time.Second)
	for {
		progress, err := client.TrainingProgress(context.Background())
		if err != nil {
			t.Fatalf("TrainingProgress: %v", err)
		}
		if progress.CurrentVersion == "v2" && !progress.TrainingInProgress {
			if progress.CurrentConversations != 0 {
				t.Errorf("CurrentConversations = %d after training, want 0", progress.CurrentConversations)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("training never completed: %+v", progress)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFinetune_NoDataWithoutForce(t *testing.T) {
	client, _ := newTestService(t)

	got, err := client.StartFinetune(context.Background(), false, true)
	if err != nil {
		t.Fatalf("StartFinetune: %v", err)
	}
	if got.Success {
		t.Error("finetune succeeded with no collected data")
	}
}

func TestFinetune_ForceStartsPass(t *testing.T) {
	client, _ := newTestService(t, WithTrainingDelay(10*time.Millisecond))

	got, err := client.StartFinetune(context.Background(), true, true)
	if err != nil {
		t.Fatalf("StartFinetune: %v", err)
	}
	if !got.Success {
		t.Fatalf("forced finetune rejected: %+v", got)
	}
}

func TestClearConversations(t *testing.T) {
	client, srv := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := client.Chat(context.Background(), fmt.Sprintf("something worth remembering %d", i), "default"); err != nil {
			t.Fatalf("Chat %d: %v", i, err)
		}
	}

	got, err := client.ClearConversations(context.Background(), true)
	if err != nil {
		t.Fatalf("ClearConversations: %v", err)
	}
	if !got.Success || got.ClearedCount != 3 {
		t.Errorf("result = %+v, want success with 3 cleared", got)
	}

	backups, err := srv.store.CountBackups()
	if err != nil {
		t.Fatalf("CountBackups: %v", err)
	}
	if backups != 3 {
		t.Errorf("backups = %d, want 3", backups)
	}
}
