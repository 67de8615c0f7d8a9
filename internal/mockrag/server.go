// Package mockrag is a self-contained stand-in for the remote
// retrieval-augmented chat service. It serves the same JSON contract the
// real service does (chat, memory, stats and the ML-pipeline endpoints)
// with canned generation, so the terminal client can be developed and
// demoed without a GPU box. Collected conversations are persisted through
// the storage package.
package mockrag

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/ragchat/internal/rag"
	"github.com/kalambet/ragchat/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

const (
	defaultBatchSize  = 50
	defaultMaxMemory  = 10
	defaultTrainDelay = 2 * time.Second
)

// seedDocuments is the mock's stand-in corpus for vector search.
var seedDocuments = []string{
	"Retrieval-augmented generation grounds model answers in documents fetched at query time.",
	"The conversation collector stores qualifying exchanges as fine-tuning material.",
	"Fine-tuning runs automatically once a full batch of new conversations has been collected.",
	"Short-term memory keeps the most recent turns so follow-up questions stay in context.",
	"Vector search ranks documents by embedding similarity to the user's question.",
}

type memoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Server implements the chat service API in-process.
type Server struct {
	store      *storage.Store
	coll       collector
	logger     *slog.Logger
	batchSize  int
	trainDelay time.Duration
	startedAt  time.Time

	mu            sync.Mutex
	totalQueries  int
	totalSearchMs float64
	totalGPTMs    float64
	memory        []memoryMessage
	maxMemory     int
	modelVersion  int
	trainingBusy  bool
	trainQueued   bool
	docCount      int
}

// Option customizes a Server.
type Option func(*Server)

// WithBatchSize sets how many collected conversations trigger a training pass.
func WithBatchSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithTrainingDelay sets how long a simulated fine-tuning pass takes.
func WithTrainingDelay(d time.Duration) Option {
	return func(s *Server) { s.trainDelay = d }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer builds a mock service backed by the given store.
func NewServer(store *storage.Store, opts ...Option) *Server {
	s := &Server{
		store:        store,
		coll:         collector{store: store},
		logger:       slog.Default(),
		batchSize:    defaultBatchSize,
		trainDelay:   defaultTrainDelay,
		startedAt:    time.Now(),
		maxMemory:    defaultMaxMemory,
		modelVersion: 1,
		docCount:     len(seedDocuments),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the service's HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Post("/chat", s.handleChat)
	r.Get("/memory", s.handleGetMemory)
	r.Delete("/memory", s.handleClearMemory)
	r.Get("/stats", s.handleStats)
	r.Get("/mlops/training-progress", s.handleTrainingProgress)
	r.Post("/mlops/finetune", s.handleFinetune)
	r.Delete("/mlops/conversations", s.handleClearConversations)

	return r
}

func (s *Server) currentVersion() string {
	return fmt.Sprintf("v%d", s.modelVersion)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	docCount := s.docCount
	s.mu.Unlock()

	uptime := time.Since(s.startedAt)
	writeJSON(w, map[string]any{
		"status":              "healthy",
		"model_loaded":        true,
		"vector_db_connected": true,
		"document_count":      docCount,
		"uptime": fmt.Sprintf("%dh %dm %ds",
			int(uptime.Hours()), int(uptime.Minutes())%60, int(uptime.Seconds())%60),
	})
}

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httpError(w, http.StatusBadRequest, "message is required")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID = "default"
	}

	results := searchSimilar(req.Message)
	response := generateResponse(req.Message, results)

	// Simulated per-phase latency, derived from the input so it is stable.
	searchMs := 8.0 + float64(len(req.Message)%17)
	gptMs := 55.0 + float64(len(response)%41)
	totalMs := searchMs + gptMs

	s.mu.Lock()
	s.totalQueries++
	s.totalSearchMs += searchMs
	s.totalGPTMs += gptMs
	s.docCount++ // the exchange is added to the corpus
	s.memory = append(s.memory,
		memoryMessage{Role: "user", Content: req.Message},
		memoryMessage{Role: "assistant", Content: response},
	)
	if excess := len(s.memory) - s.maxMemory; excess > 0 {
		s.memory = s.memory[excess:]
	}
	queries := s.totalQueries
	avgGPT := s.totalGPTMs / float64(queries)
	version := s.currentVersion()
	s.mu.Unlock()

	collected, err := s.coll.collect(req.Message, response, userID, version)
	if err != nil {
		s.logger.Warn("conversation collect failed", "error", err)
	}
	info := s.mlopsInfo(collected)

	writeJSON(w, rag.ChatResponse{
		Response:      response,
		SearchResults: results,
		Timing: &rag.Timing{
			Total:  fmt.Sprintf("%.2fms", totalMs),
			Search: fmt.Sprintf("%.2fms", searchMs),
			GPT:    fmt.Sprintf("%.2fms", gptMs),
		},
		Stats: &rag.ChatStats{
			TotalQueries: queries,
			AvgGPT:       fmt.Sprintf("%.2fms", avgGPT),
		},
		MLOpsInfo: &info,
	})
}

// mlopsInfo assembles the training-pipeline block for a chat response and,
// when a full batch has accumulated, triggers an automatic fine-tuning pass.
func (s *Server) mlopsInfo(collected bool) rag.MLOpsInfo {
	total, err := s.store.CountConversations()
	if err != nil {
		s.logger.Warn("counting conversations failed", "error", err)
	}
	newCount, err := s.store.CountUntrained()
	if err != nil {
		s.logger.Warn("counting untrained conversations failed", "error", err)
	}

	shouldTrain := newCount >= s.batchSize
	pending := s.batchSize - newCount
	if pending < 0 {
		pending = 0
	}

	triggered := false
	if collected && shouldTrain {
		triggered = s.startTraining()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return rag.MLOpsInfo{
		Collected:         collected,
		TotalCollected:    total,
		NewDataCount:      newCount,
		PendingCount:      pending,
		ShouldTrain:       shouldTrain,
		TrainingQueued:    s.trainQueued,
		TrainingTriggered: triggered,
		CurrentVersion:    s.currentVersion(),
	}
}

// startTraining kicks off a simulated fine-tuning pass. If one is already
// running the request is queued instead. Reports whether a pass started.
func (s *Server) startTraining() bool {
	s.mu.Lock()
	if s.trainingBusy {
		s.trainQueued = true
		s.mu.Unlock()
		return false
	}
	s.trainingBusy = true
	s.mu.Unlock()

	go func() {
		time.Sleep(s.trainDelay)
		if _, err := s.store.MarkAllTrained(); err != nil {
			s.logger.Warn("marking conversations trained failed", "error", err)
		}
		s.mu.Lock()
		s.modelVersion++
		s.trainingBusy = false
		rerun := s.trainQueued
		s.trainQueued = false
		s.mu.Unlock()
		if rerun {
			s.startTraining()
		}
	}()
	return true
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	messages := make([]memoryMessage, len(s.memory))
	copy(messages, s.memory)
	maxCount := s.maxMemory
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"messages":  messages,
		"count":     len(messages),
		"max_count": maxCount,
	})
}

func (s *Server) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.memory = nil
	s.mu.Unlock()

	writeJSON(w, map[string]any{"message": "Memory cleared successfully"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	queries := s.totalQueries
	avgSearch, avgGPT := 0.0, 0.0
	if queries > 0 {
		avgSearch = s.totalSearchMs / float64(queries)
		avgGPT = s.totalGPTMs / float64(queries)
	}
	docCount := s.docCount
	s.mu.Unlock()

	averages := map[string]any{}
	if queries > 0 {
		averages = map[string]any{
			"total_queries":   queries,
			"avg_search_time": fmt.Sprintf("%.2fms", avgSearch),
			"avg_gpt_time":    fmt.Sprintf("%.2fms", avgGPT),
		}
	}
	writeJSON(w, map[string]any{
		"performance": map[string]any{
			"averages":       averages,
			"document_count": docCount,
		},
	})
}

func (s *Server) handleTrainingProgress(w http.ResponseWriter, r *http.Request) {
	newCount, err := s.store.CountUntrained()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "counting conversations: %v", err)
		return
	}

	until := s.batchSize - newCount
	if until < 0 {
		until = 0
	}
	progress := float64(newCount) / float64(s.batchSize) * 100
	if progress > 100 {
		progress = 100
	}

	s.mu.Lock()
	busy := s.trainingBusy
	version := s.currentVersion()
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"batch_size":                   s.batchSize,
		"progress_percentage":          progress,
		"current_conversations":        newCount,
		"conversations_until_training": until,
		"training_in_progress":         busy,
		"current_version":              version,
	})
}

type finetuneRequest struct {
	Force          bool `json:"force"`
	BackupExisting bool `json:"backup_existing"`
}

func (s *Server) handleFinetune(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req finetuneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	newCount, err := s.store.CountUntrained()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "counting conversations: %v", err)
		return
	}
	if newCount == 0 && !req.Force {
		writeJSON(w, rag.FinetuneResult{
			Success: false,
			Message: "no new training data collected",
		})
		return
	}

	if !s.startTraining() {
		writeJSON(w, rag.FinetuneResult{
			Success:           false,
			TrainingDataCount: newCount,
			Message:           "training already in progress, request queued",
		})
		return
	}

	writeJSON(w, rag.FinetuneResult{
		Success:           true,
		TrainingDataCount: newCount,
		Message:           "fine-tuning started",
	})
}

func (s *Server) handleClearConversations(w http.ResponseWriter, r *http.Request) {
	backup := r.URL.Query().Get("backup") == "true"
	n, err := s.store.ClearConversations(backup)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "clearing conversations: %v", err)
		return
	}
	writeJSON(w, rag.ClearResult{Success: true, ClearedCount: n})
}

// searchSimilar ranks the seed corpus by naive term overlap with the query.
func searchSimilar(query string) []rag.SearchResult {
	terms := strings.Fields(strings.ToLower(query))

	type scored struct {
		doc   string
		score float64
	}
	ranked := make([]scored, 0, len(seedDocuments))
	for _, doc := range seedDocuments {
		lower := strings.ToLower(doc)
		matches := 0
		for _, term := range terms {
			if strings.Contains(lower, term) {
				matches++
			}
		}
		score := 0.3
		if len(terms) > 0 {
			score += 0.7 * float64(matches) / float64(len(terms))
		}
		ranked = append(ranked, scored{doc: doc, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	n := 3
	if n > len(ranked) {
		n = len(ranked)
	}
	results := make([]rag.SearchResult, 0, n)
	for i := 0; i < n; i++ {
		results = append(results, rag.SearchResult{
			Document: ranked[i].doc,
			Score:    ranked[i].score,
			Rank:     i + 1,
		})
	}
	return results
}

// generateResponse fabricates an answer grounded in the top retrieved document.
func generateResponse(message string, results []rag.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf("I don't have any documents related to %q yet.", message)
	}
	return fmt.Sprintf("Based on what I know: %s", results[0].Document)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"detail": fmt.Sprintf(format, args...),
	})
}
