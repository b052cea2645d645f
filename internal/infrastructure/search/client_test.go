package search_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"mailagent/internal/infrastructure/search"
)

func newClient(t *testing.T, cfg search.Config) *search.Client {
	t.Helper()
	client, err := search.NewClient(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Fatalf("write response: %v", err)
	}
}

func TestSearchUsesSerperWhenConfigured(t *testing.T) {
	var gotKey string
	var gotBody struct {
		Q   string `json:"q"`
		Num int    `json:"num"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotKey = r.Header.Get("X-API-KEY")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		writeJSON(t, w, `{"organic":[
			{"title":"Go","link":"https://go.dev","snippet":"The Go programming language"},
			{"title":"Go docs","link":"https://go.dev/doc","snippet":"Documentation"},
			{"title":"Go blog","link":"https://go.dev/blog","snippet":"Blog"}
		]}`)
	}))
	defer srv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:   "test-key",
		SearchEndpoint: srv.URL,
		MaxResults:     2,
	})

	results, err := client.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("X-API-KEY = %q, want %q", gotKey, "test-key")
	}
	if gotBody.Q != "golang" || gotBody.Num != 2 {
		t.Errorf("request body = %+v, want q=golang num=2", gotBody)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].Title != "Go" || results[0].Link != "https://go.dev" {
		t.Errorf("first result = %+v", results[0])
	}
	if results[0].Source != "serper" {
		t.Errorf("source = %q, want serper", results[0].Source)
	}
}

func TestSearchFallsBackToDuckDuckGo(t *testing.T) {
	var serperHits int32
	serperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&serperHits, 1)
		// A 4xx rejection is not retried; the fallback runs immediately.
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer serperSrv.Close()

	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("format"); got != "json" {
			t.Errorf("format = %q, want json", got)
		}
		writeJSON(t, w, `{
			"Heading": "Go (programming language)",
			"AbstractText": "Go is a statically typed language.",
			"AbstractURL": "https://go.dev",
			"RelatedTopics": [
				{"Text": "Go standard library", "FirstURL": "https://pkg.go.dev/std"},
				{"Name": "Related", "Topics": [
					{"Text": "Gopher mascot", "FirstURL": "https://go.dev/blog/gopher"}
				]}
			]
		}`)
	}))
	defer ddgSrv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:     "test-key",
		SearchEndpoint:   serperSrv.URL,
		FallbackEndpoint: ddgSrv.URL,
	})

	results, err := client.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if atomic.LoadInt32(&serperHits) != 1 {
		t.Errorf("serper hits = %d, want 1", serperHits)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	if results[0].Link != "https://go.dev" {
		t.Errorf("abstract link = %q", results[0].Link)
	}
	if results[2].Link != "https://go.dev/blog/gopher" {
		t.Errorf("nested topic link = %q, want gopher page", results[2].Link)
	}
	for _, r := range results {
		if r.Source != "duckduckgo" {
			t.Errorf("source = %q, want duckduckgo", r.Source)
		}
	}
}

func TestSearchRetriesServerErrors(t *testing.T) {
	var serperHits int32
	serperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&serperHits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, `{"organic":[{"title":"Go","link":"https://go.dev","snippet":"s"}]}`)
	}))
	defer serperSrv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:   "test-key",
		SearchEndpoint: serperSrv.URL,
	})

	results, err := client.Search(context.Background(), "golang")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if atomic.LoadInt32(&serperHits) != 2 {
		t.Errorf("serper hits = %d, want 2", serperHits)
	}
	if len(results) != 1 || results[0].Source != "serper" {
		t.Errorf("results = %+v, want the retried serper answer", results)
	}
}

func TestSearchSkipsSerperWithoutKey(t *testing.T) {
	var serperHits int32
	serperSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&serperHits, 1)
		writeJSON(t, w, `{"organic":[]}`)
	}))
	defer serperSrv.Close()

	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"AbstractText":"answer","AbstractURL":"https://example.com"}`)
	}))
	defer ddgSrv.Close()

	client := newClient(t, search.Config{
		SearchEndpoint:   serperSrv.URL,
		FallbackEndpoint: ddgSrv.URL,
	})

	results, err := client.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if atomic.LoadInt32(&serperHits) != 0 {
		t.Errorf("serper hits = %d, want 0", serperHits)
	}
	if len(results) != 1 || results[0].Link != "https://example.com" {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchCachesResults(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		writeJSON(t, w, `{"organic":[{"title":"Go","link":"https://go.dev","snippet":"s"}]}`)
	}))
	defer srv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:   "test-key",
		SearchEndpoint: srv.URL,
	})

	for i := 0; i < 2; i++ {
		if _, err := client.Search(context.Background(), "Go Tips"); err != nil {
			t.Fatalf("Search #%d: %v", i+1, err)
		}
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits after repeated query = %d, want 1", hits)
	}

	// Case differences share a cache slot.
	if _, err := client.Search(context.Background(), "go tips"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("hits after case-insensitive repeat = %d, want 1", hits)
	}

	if _, err := client.Search(context.Background(), "different query"); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Errorf("hits after new query = %d, want 2", hits)
	}
}

func TestFetchPageExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head>
			<style>body { color: red; }</style>
			<script>alert("hi")</script>
		</head><body><h1>Release Notes</h1><p>Go 1.25 is out.</p></body></html>`))
	}))
	defer srv.Close()

	client := newClient(t, search.Config{})

	text, err := client.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !strings.Contains(text, "Release Notes") || !strings.Contains(text, "Go 1.25 is out.") {
		t.Errorf("text = %q, want visible content", text)
	}
	if strings.Contains(text, "color: red") || strings.Contains(text, "alert") {
		t.Errorf("text = %q, should strip style and script content", text)
	}
}

func TestFetchPagePrefersSerperScrape(t *testing.T) {
	scrapeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("X-API-KEY = %q", got)
		}
		writeJSON(t, w, `{"text":"scraped page content"}`)
	}))
	defer scrapeSrv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:   "test-key",
		ScrapeEndpoint: scrapeSrv.URL,
	})

	text, err := client.FetchPage(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if text != "scraped page content" {
		t.Errorf("text = %q", text)
	}
}

func TestSearchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, `{"organic":[
			{"title":"Go","link":"https://go.dev","snippet":"The Go programming language"},
			{"title":"Go docs","link":"https://go.dev/doc","snippet":"Documentation"}
		]}`)
	}))
	defer srv.Close()

	client := newClient(t, search.Config{
		SerperAPIKey:   "test-key",
		SearchEndpoint: srv.URL,
	})

	def, handler := search.SearchTool(client)
	if def.Name != "web_search" {
		t.Errorf("tool name = %q", def.Name)
	}

	out, err := handler(context.Background(), json.RawMessage(`{"query":"golang"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	blocks := strings.Split(out, "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2:\n%s", len(blocks), out)
	}
	if !strings.Contains(blocks[0], "Go") || !strings.Contains(blocks[0], "https://go.dev") {
		t.Errorf("first block = %q", blocks[0])
	}

	if _, err := handler(context.Background(), json.RawMessage(`{"query":"  "}`)); err == nil {
		t.Error("expected error for empty query")
	}
}

func TestFormatResultsEmpty(t *testing.T) {
	out := search.FormatResults("obscure thing", nil)
	if !strings.Contains(out, "No results found") || !strings.Contains(out, "obscure thing") {
		t.Errorf("out = %q", out)
	}
}

func TestFetchToolTruncatesLongPages(t *testing.T) {
	long := strings.Repeat("word ", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer srv.Close()

	client := newClient(t, search.Config{})

	def, handler := search.FetchTool(client)
	if def.Name != "fetch_webpage" {
		t.Errorf("tool name = %q", def.Name)
	}

	out, err := handler(context.Background(), json.RawMessage(`{"url":"`+srv.URL+`"}`))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.HasSuffix(out, "(truncated)") {
		t.Errorf("output should carry a truncation marker, got tail %q", out[len(out)-40:])
	}
	if len(out) > 16100 {
		t.Errorf("len(out) = %d, want bounded", len(out))
	}
}
