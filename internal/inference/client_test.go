package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testRequest() ChatRequest {
	return ChatRequest{
		Model: "test-model",
		Messages: []ChatMessage{
			{Role: "system", Content: "you classify CVEs"},
			{Role: "user", Content: "classify this"},
		},
		Temperature: 0,
		Format:      "json",
	}
}

func newTestClient(endpoint string, attempts int) *Client {
	return NewClient(Config{
		Endpoint: endpoint,
		Attempts: attempts,
		Delay:    0,
		Timeout:  5 * time.Second,
	}, zap.NewNop())
}

func TestClient_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Expected application/json, got %s", ct)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"  {\"category\":\"RCE\"}  "}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	content, err := client.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if content != `{"category":"RCE"}` {
		t.Errorf("Unexpected content: %q", content)
	}
}

func TestClient_Send_RetriesBadStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 3)
	content, err := client.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if content != "ok" {
		t.Errorf("Unexpected content: %q", content)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestClient_Send_EmptyContentExhaustsBudget(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(`{"choices":[{"message":{"content":""}}]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 4)
	_, err := client.Send(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if attempts != 4 {
		t.Errorf("Expected 4 attempts, got %d", attempts)
	}
}

func TestClient_Send_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	if _, err := client.Send(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for empty choices")
	}
}

func TestClient_Send_NetworkFault(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := newTestClient(server.URL, 2)
	if _, err := client.Send(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for unreachable server")
	}
}

func TestClient_Send_UndecodableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer server.Close()

	client := newTestClient(server.URL, 1)
	if _, err := client.Send(context.Background(), testRequest()); err == nil {
		t.Fatal("Expected error for undecodable body")
	}
}

func TestTokenCounter_Count(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"prompt_eval_count": 1234}`))
	}))
	defer server.Close()

	counter := NewTokenCounter(server.URL, "test-model", 5*time.Second)
	n, err := counter.Count(context.Background(), "some prompt")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1234 {
		t.Errorf("Expected 1234 tokens, got %d", n)
	}
}

func TestTokenCounter_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	counter := NewTokenCounter(server.URL, "test-model", 5*time.Second)
	if _, err := counter.Count(context.Background(), "prompt"); err == nil {
		t.Fatal("Expected error for non-200 status")
	}
}
