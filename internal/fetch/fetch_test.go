package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com/page", "https://example.com/page"},
		{"http://example.com", "http://example.com"},
		{"https://arxiv.org/abs/2401.12345", "https://arxiv.org/pdf/2401.12345"},
		{"http://arxiv.org/abs/2401.12345v2", "http://arxiv.org/pdf/2401.12345v2"},
		{"arxiv.org/abs/2401.12345", "https://arxiv.org/pdf/2401.12345"},
		{"  example.com  ", "https://example.com"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.in); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		contentType string
		body        []byte
		want        bool
	}{
		{"content type", "https://x.com/doc", "application/pdf", nil, true},
		{"content type with charset", "https://x.com/doc", "Application/PDF; charset=binary", nil, true},
		{"magic bytes", "https://x.com/doc", "application/octet-stream", []byte("%PDF-1.7 rest"), true},
		{"extension", "https://x.com/paper.pdf", "application/octet-stream", nil, true},
		{"extension with query", "https://x.com/paper.PDF?dl=1", "", nil, true},
		{"html page", "https://x.com/page", "text/html", []byte("<html>"), false},
	}
	for _, tt := range tests {
		if got := isPDF(tt.url, tt.contentType, tt.body); got != tt.want {
			t.Errorf("%s: isPDF = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFetchHTML(t *testing.T) {
	page := `<html><head><title>Test Page</title><style>body{}</style></head>
	<body><nav>menu</nav><h1>Heading</h1><p>First paragraph.</p>
	<script>alert(1)</script><p>Second paragraph.</p></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(page))
	}))
	defer srv.Close()

	f := New("testbot/1.0")
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if res.Type != TypeWebpage {
		t.Errorf("type = %q", res.Type)
	}
	if res.Title != "Test Page" {
		t.Errorf("title = %q", res.Title)
	}
	if !strings.Contains(res.Content, "First paragraph.") || !strings.Contains(res.Content, "Second paragraph.") {
		t.Errorf("content = %q", res.Content)
	}
	if strings.Contains(res.Content, "alert(1)") {
		t.Errorf("script leaked into content: %q", res.Content)
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New("testbot/1.0")
	if _, err := f.Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error on HTTP 404")
	}
}

func TestFetchEmptyURL(t *testing.T) {
	f := New("testbot/1.0")
	if _, err := f.Fetch(context.Background(), "   "); err == nil {
		t.Fatal("expected error on empty url")
	}
}

func TestExtractHTMLBrokenMarkup(t *testing.T) {
	title, text := extractHTML("<p>unclosed <b>bold text")
	if title != "" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(text, "unclosed") || !strings.Contains(text, "bold text") {
		t.Errorf("text = %q", text)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := "日本語テキスト"
	got := truncateUTF8(s, 3)
	if got != "日本語" {
		t.Errorf("truncateUTF8 = %q", got)
	}
	if got := truncateUTF8("short", 100); got != "short" {
		t.Errorf("truncateUTF8 short = %q", got)
	}
}
