package rag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"healthy","model_loaded":true,"document_count":128}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	h, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", h.Status)
	}
	if !h.ModelLoaded {
		t.Error("ModelLoaded = false, want true")
	}
	if h.DocumentCount != 128 {
		t.Errorf("DocumentCount = %d, want 128", h.DocumentCount)
	}
}

func TestChat(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&captured)
		w.Write([]byte(`{
			"response":"hi",
			"search_results":[{"document":"doc one","score":0.91}],
			"timing":{"total":"120.00ms","search":"10.00ms","gpt":"100.00ms"},
			"stats":{"total_queries":5,"avg_gpt":"98.00ms"},
			"mlops_info":{"collected":true,"total_collected":12,"new_data_count":3,"pending_count":47,"should_train":false,"training_queued":false,"training_triggered":false,"current_version":"v2"}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	resp, err := c.Chat(context.Background(), "안녕", "default")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if captured.Message != "안녕" || captured.UserID != "default" {
		t.Errorf("request = %+v, want message=안녕 user_id=default", captured)
	}
	if resp.Response != "hi" {
		t.Errorf("Response = %q, want hi", resp.Response)
	}
	if len(resp.SearchResults) != 1 || resp.SearchResults[0].Score != 0.91 {
		t.Errorf("SearchResults = %+v, want one result with score 0.91", resp.SearchResults)
	}
	if resp.Stats == nil || resp.Stats.TotalQueries != 5 {
		t.Errorf("Stats = %+v, want TotalQueries=5", resp.Stats)
	}
	if resp.MLOpsInfo == nil || resp.MLOpsInfo.TotalCollected != 12 {
		t.Errorf("MLOpsInfo = %+v, want TotalCollected=12", resp.MLOpsInfo)
	}
}

func TestChat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Chat(context.Background(), "x", "default")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("error = %q, want it to mention 500", err)
	}
}

func TestChat_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Chat(context.Background(), "x", "default")
	if err == nil {
		t.Fatal("expected decode error for truncated body")
	}
}

func TestStats_NestedShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"performance":{"averages":{"total_queries":31,"avg_gpt_time":"88.10ms"},"document_count":204}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalQueries != 31 || s.AvgGPTTime != "88.10ms" || s.DocumentCount != 204 {
		t.Errorf("Stats = %+v, want 31/88.10ms/204", s)
	}
}

func TestStats_LegacyFlatShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"raw_stats":{"total_queries":9},"averages":{"total_queries":9,"avg_gpt_time":"70.00ms"},"document_count":55}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	s, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if s.TotalQueries != 9 || s.DocumentCount != 55 {
		t.Errorf("Stats = %+v, want TotalQueries=9 DocumentCount=55", s)
	}
}

func TestClearConversations_BackupQuery(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		w.Write([]byte(`{"success":true,"cleared_count":14}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.ClearConversations(context.Background(), true)
	if err != nil {
		t.Fatalf("ClearConversations: %v", err)
	}
	if gotPath != "/mlops/conversations?backup=true" {
		t.Errorf("path = %q, want /mlops/conversations?backup=true", gotPath)
	}
	if !res.Success || res.ClearedCount != 14 {
		t.Errorf("result = %+v, want success with 14 cleared", res)
	}
}

func TestTrainingProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mlops/training-progress" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"batch_size":50,"progress_percentage":64.0,"current_conversations":32,"conversations_until_training":18,"training_in_progress":false,"current_version":"v3"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	p, err := c.TrainingProgress(context.Background())
	if err != nil {
		t.Fatalf("TrainingProgress: %v", err)
	}
	if p.BatchSize != 50 || p.ProgressPercentage != 64.0 || p.CurrentVersion != "v3" {
		t.Errorf("progress = %+v", p)
	}
}

func TestStartFinetune(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"success":true,"training_data_count":50,"message":"training started"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res, err := c.StartFinetune(context.Background(), true, true)
	if err != nil {
		t.Fatalf("StartFinetune: %v", err)
	}
	if body["force"] != true || body["backup_existing"] != true {
		t.Errorf("request body = %v, want force and backup_existing true", body)
	}
	if !res.Success || res.TrainingDataCount != 50 {
		t.Errorf("result = %+v", res)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if _, err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error when server is down")
	}
}
