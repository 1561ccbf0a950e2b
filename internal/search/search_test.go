package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockProvider struct {
	name      string
	lastQuery string
	results   []Result
	err       error
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Search(_ context.Context, query string, _ int) ([]Result, error) {
	m.lastQuery = query
	return m.results, m.err
}

func TestManagerSearch(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{
		name:    "mock",
		results: []Result{{Title: "Test", URL: "https://example.com", Content: "a hit"}},
	})

	results, err := mgr.Search(context.Background(), "test", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Title != "Test" {
		t.Errorf("results = %v", results)
	}
}

func TestManagerUnconfigured(t *testing.T) {
	mgr := NewManager("missing")
	if _, err := mgr.Search(context.Background(), "test", 5); err == nil {
		t.Fatal("expected error for missing provider")
	}
}

func TestSearchKeywordsJoinsQuery(t *testing.T) {
	p := &mockProvider{name: "mock"}
	mgr := NewManager("mock")
	mgr.Register(p)

	if _, err := mgr.SearchKeywords(context.Background(), []string{"rust", "async"}); err != nil {
		t.Fatal(err)
	}
	if p.lastQuery != "rust async" {
		t.Errorf("query = %q", p.lastQuery)
	}
}

func TestSearchKeywordsEmpty(t *testing.T) {
	mgr := NewManager("mock")
	mgr.Register(&mockProvider{name: "mock"})

	if _, err := mgr.SearchKeywords(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty keywords")
	}
}

func TestSearXNGSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "rust async" {
			t.Errorf("q = %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{
				{"title": "A", "url": "https://a.com", "content": "first"},
				{"title": "B", "url": "https://b.com", "content": "second"},
				{"title": "C", "url": "https://c.com", "content": "third"},
			},
		})
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	results, err := p.Search(context.Background(), "rust async", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Title != "A" || results[1].Content != "second" {
		t.Errorf("results = %v", results)
	}
}

func TestSearXNGErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewSearXNG(srv.URL)
	if _, err := p.Search(context.Background(), "x", 5); err == nil {
		t.Fatal("expected error on HTTP 429")
	}
}
