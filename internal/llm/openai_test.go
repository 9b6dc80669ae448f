package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, dimension int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		Dimension:  dimension,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Options{}); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestEmbed_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}, 3)

	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("got %v", vec)
	}
}

func TestEmbed_EmptyTextRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called for empty text")
	}, 0)

	if _, err := c.Embed(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestEmbed_FailsLoudlyOnEmptyData(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data":[]}`))
	}, 0)

	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected error, got nil vector path")
	}
	if calls != 2 {
		t.Errorf("got %d attempts, want 2", calls)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2]}]}`))
	}, 1536)

	if _, err := c.Embed(context.Background(), "hello"); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestComplete_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"an answer"}}]}`))
	}, 0)

	out, err := c.Complete(context.Background(), "sys", "user", 0.7, 256)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "an answer" {
		t.Errorf("got %q", out)
	}
}

func TestComplete_RetriesServerError(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"recovered"}}]}`))
	}, 0)

	out, err := c.Complete(context.Background(), "sys", "user", 0, 0)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != "recovered" || calls != 2 {
		t.Errorf("got %q after %d calls", out, calls)
	}
}
