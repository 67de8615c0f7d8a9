// Package rag is the HTTP client for the remote retrieval-augmented chat
// service. The embedding model, vector search and fine-tuning loop behind it
// are a black box; this package only speaks the service's JSON contract.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SearchResult is one retrieved document with its similarity score.
type SearchResult struct {
	Document string  `json:"document"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank,omitempty"`
}

// Timing is the per-phase latency breakdown of a chat response. Values are
// preformatted by the service ("12.34ms").
type Timing struct {
	Total  string `json:"total"`
	Search string `json:"search"`
	GPT    string `json:"gpt"`
}

// ChatStats is the running averages block embedded in a chat response.
type ChatStats struct {
	TotalQueries int    `json:"total_queries"`
	AvgGPT       string `json:"avg_gpt"`
}

// MLOpsInfo is the training-pipeline block attached to chat responses when
// conversation collection is enabled server-side.
type MLOpsInfo struct {
	Collected         bool   `json:"collected"`
	TotalCollected    int    `json:"total_collected"`
	NewDataCount      int    `json:"new_data_count"`
	PendingCount      int    `json:"pending_count"`
	ShouldTrain       bool   `json:"should_train"`
	TrainingQueued    bool   `json:"training_queued"`
	TrainingTriggered bool   `json:"training_triggered"`
	CurrentVersion    string `json:"current_version"`
}

// ChatResponse is the JSON returned by POST /chat.
type ChatResponse struct {
	Response      string         `json:"response"`
	SearchResults []SearchResult `json:"search_results"`
	Timing        *Timing        `json:"timing"`
	Stats         *ChatStats     `json:"stats"`
	MLOpsInfo     *MLOpsInfo     `json:"mlops_info"`
}

// HealthResponse is the JSON returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	ModelLoaded   bool   `json:"model_loaded"`
	DocumentCount int    `json:"document_count"`
}

// MemoryMessage is one turn held in the service's short-term memory.
type MemoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MemoryStatus is the JSON returned by GET /memory.
type MemoryStatus struct {
	Messages []MemoryMessage `json:"messages"`
	Count    int             `json:"count"`
	MaxCount int             `json:"max_count"`
}

// ServiceStats is the normalized view of GET /stats. The endpoint has two
// known shapes in the wild (a nested "performance" envelope and a legacy flat
// body); Stats accepts both and always returns this form.
type ServiceStats struct {
	TotalQueries  int
	AvgGPTTime    string
	DocumentCount int
}

// TrainingProgress is the JSON returned by GET /mlops/training-progress.
type TrainingProgress struct {
	BatchSize                  int     `json:"batch_size"`
	ProgressPercentage         float64 `json:"progress_percentage"`
	CurrentConversations       int     `json:"current_conversations"`
	ConversationsUntilTraining int     `json:"conversations_until_training"`
	TrainingInProgress         bool    `json:"training_in_progress"`
	CurrentVersion             string  `json:"current_version"`
}

// FinetuneResult is the JSON returned by POST /mlops/finetune.
type FinetuneResult struct {
	Success           bool   `json:"success"`
	TrainingDataCount int    `json:"training_data_count"`
	Message           string `json:"message"`
}

// ClearResult is the JSON returned by DELETE /mlops/conversations.
type ClearResult struct {
	Success      bool `json:"success"`
	ClearedCount int  `json:"cleared_count"`
}

// Client communicates with the chat service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client targeting the given base URL. No request timeout is
// set; chat generation can legitimately take a long time. Callers that want a
// ceiling use SetTimeout or a request context.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 0},
	}
}

// SetTimeout sets a transport-level timeout for all subsequent requests.
// Zero means no timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var bodyReader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if bodyReader != nil {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// Health returns the service's readiness summary.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// Chat sends a user message and returns the generated response with its
// retrieval and timing metadata.
func (c *Client) Chat(ctx context.Context, message, userID string) (ChatResponse, error) {
	var out ChatResponse
	err := c.do(ctx, http.MethodPost, "/chat", chatRequest{Message: message, UserID: userID}, &out)
	return out, err
}

// Memory returns the short-term conversation memory status.
func (c *Client) Memory(ctx context.Context) (MemoryStatus, error) {
	var out MemoryStatus
	err := c.do(ctx, http.MethodGet, "/memory", nil, &out)
	return out, err
}

// ClearMemory wipes the service's short-term conversation memory.
func (c *Client) ClearMemory(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/memory", nil, nil)
}

// statsBody is the inner stats shape, shared by both envelope variants.
type statsBody struct {
	Averages struct {
		TotalQueries int    `json:"total_queries"`
		AvgGPTTime   string `json:"avg_gpt_time"`
	} `json:"averages"`
	DocumentCount int `json:"document_count"`
}

// statsEnvelope accepts both the nested shape {"performance": {...}} and the
// legacy flat shape where averages/document_count sit at the top level.
type statsEnvelope struct {
	Performance *statsBody `json:"performance"`
	statsBody
}

// Stats returns normalized performance statistics.
func (c *Client) Stats(ctx context.Context) (ServiceStats, error) {
	var env statsEnvelope
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &env); err != nil {
		return ServiceStats{}, err
	}
	body := env.statsBody
	if env.Performance != nil {
		body = *env.Performance
	}
	return ServiceStats{
		TotalQueries:  body.Averages.TotalQueries,
		AvgGPTTime:    body.Averages.AvgGPTTime,
		DocumentCount: body.DocumentCount,
	}, nil
}

// TrainingProgress returns the fine-tuning pipeline's progress toward the
// next training batch.
func (c *Client) TrainingProgress(ctx context.Context) (TrainingProgress, error) {
	var out TrainingProgress
	err := c.do(ctx, http.MethodGet, "/mlops/training-progress", nil, &out)
	return out, err
}

// finetuneRequest is the JSON body for POST /mlops/finetune.
type finetuneRequest struct {
	Force          bool `json:"force"`
	BackupExisting bool `json:"backup_existing"`
}

// StartFinetune asks the service to run a fine-tuning pass.
func (c *Client) StartFinetune(ctx context.Context, force, backupExisting bool) (FinetuneResult, error) {
	var out FinetuneResult
	err := c.do(ctx, http.MethodPost, "/mlops/finetune", finetuneRequest{Force: force, BackupExisting: backupExisting}, &out)
	return out, err
}

// ClearConversations deletes the collected training conversations, optionally
// backing them up server-side first.
func (c *Client) ClearConversations(ctx context.Context, backup bool) (ClearResult, error) {
	path := "/mlops/conversations"
	if backup {
		path += "?backup=true"
	}
	var out ClearResult
	err := c.do(ctx, http.MethodDelete, path, nil, &out)
	return out, err
}
