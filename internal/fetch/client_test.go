package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchBytes_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	data, contentType, err := client.FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("FetchBytes failed: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Expected png-bytes, got %s", data)
	}
	if contentType != "image/png" {
		t.Errorf("Expected image/png, got %s", contentType)
	}
}

func TestFetchBytes_RetriesOnServiceUnavailable(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	data, _, err := client.FetchBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected retry to recover, got: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("Expected ok, got %s", data)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestFetchBytes_NotFoundIsError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	_, _, err := client.FetchBytes(context.Background(), server.URL)
	if err == nil {
		t.Fatal("Expected error for 404")
	}
	// A definite 404 is not retried.
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestDo_RespectsCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if _, err := client.Do(ctx, req); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestDo_RateLimitsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	interval := 50 * time.Millisecond
	client := NewClient(server.Client(), interval)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, _, err := client.FetchBytes(ctx, server.URL); err != nil {
			t.Fatalf("FetchBytes failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Errorf("Expected requests spaced at least %v apart, finished in %v", interval, elapsed)
	}
}

func TestHTTPTileSource_ExpandsTemplate(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("tile"))
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	source := NewHTTPTileSource(client, server.URL+"/{z}/{x}/{y}.png")

	data, contentType, err := source.FetchTile(context.Background(), 10, 511, 340)
	if err != nil {
		t.Fatalf("FetchTile failed: %v", err)
	}
	if gotPath != "/10/511/340.png" {
		t.Errorf("Expected /10/511/340.png, got %s", gotPath)
	}
	if string(data) != "tile" || contentType != "image/png" {
		t.Errorf("Unexpected payload: %s, %s", data, contentType)
	}
}

func TestHTTPArticleSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("title") != "Hypothermia" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"title":"Hypothermia","plaintext":"Keep the casualty warm."}`))
	}))
	defer server.Close()

	client := NewClient(server.Client(), 0)
	source := NewHTTPArticleSource(client, server.URL)

	article, err := source.FetchArticle(context.Background(), "Hypothermia")
	if err != nil {
		t.Fatalf("FetchArticle failed: %v", err)
	}
	if article.Title != "Hypothermia" || article.Plaintext == "" {
		t.Errorf("Unexpected article: %+v", article)
	}
}
