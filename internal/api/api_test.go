package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"feedhub/internal/config"
	"feedhub/internal/model"
	"feedhub/internal/query"
	"feedhub/internal/storage"
)

func newTestRouter(t *testing.T, apiKey string) (*echo.Echo, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{APIKey: apiKey, AllowedOrigins: []string{"*"}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(cfg, store, query.New(store), log), store
}

func seedArticles(t *testing.T, store *storage.SQLite, n int) {
	t.Helper()
	ctx := context.Background()
	src := model.Source{ID: "src-a", Name: "Alpha", Homepage: "https://a.example", URL: "https://a.example/rss", Locale: "en"}
	if err := store.UpsertSources(ctx, []model.Source{src}); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	var articles []model.Article
	for i := 0; i < n; i++ {
		articles = append(articles, model.Article{
			Title:    fmt.Sprintf("Article %d", i),
			Link:     fmt.Sprintf("https://a.example/%d", i),
			PubDate:  base.Add(-time.Duration(i) * time.Minute),
			SourceID: src.ID,
		})
	}
	if _, err := store.InsertArticles(ctx, articles); err != nil {
		t.Fatalf("seed articles: %v", err)
	}
}

func doRequest(e *echo.Echo, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type articlesResponse struct {
	Success    bool `json:"success"`
	Data       []struct {
		ID          int64    `json:"id"`
		Title       string   `json:"title"`
		Description *string  `json:"description"`
		Link        string   `json:"link"`
		Thumbnail   *string  `json:"thumbnail"`
		SourceID    string   `json:"sourceId"`
		Categories  []string `json:"categories"`
		Source      struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
	} `json:"data"`
	Pagination struct {
		Limit   int    `json:"limit"`
		LastID  *int64 `json:"lastId"`
		HasMore bool   `json:"hasMore"`
	} `json:"pagination"`
}

func TestHealth(t *testing.T) {
	e, _ := newTestRouter(t, "")

	rec := doRequest(e, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}

func TestListArticles(t *testing.T) {
	e, store := newTestRouter(t, "")
	seedArticles(t, store, 3)

	rec := doRequest(e, http.MethodGet, "/api/articles?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp articlesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if len(resp.Data) != 2 {
		t.Fatalf("data length = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].Title != "Article 0" {
		t.Errorf("expected newest first, got %q", resp.Data[0].Title)
	}
	if resp.Data[0].Source.Name != "Alpha" {
		t.Errorf("joined source name = %q", resp.Data[0].Source.Name)
	}
	if resp.Pagination.Limit != 2 || !resp.Pagination.HasMore || resp.Pagination.LastID == nil {
		t.Errorf("pagination = %+v", resp.Pagination)
	}

	// Follow the cursor: the next page excludes everything already seen.
	rec = doRequest(e, http.MethodGet, fmt.Sprintf("/api/articles?limit=2&after=%d", *resp.Pagination.LastID), "", nil)
	var page2 articlesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page2); err != nil {
		t.Fatalf("decode page 2: %v", err)
	}
	if len(page2.Data) != 1 || page2.Data[0].Title != "Article 2" {
		t.Errorf("page 2 = %+v", page2.Data)
	}
	if page2.Pagination.HasMore {
		t.Error("expected hasMore false on final short page")
	}
}

func TestListArticlesEmptyStore(t *testing.T) {
	e, _ := newTestRouter(t, "")

	rec := doRequest(e, http.MethodGet, "/api/articles", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp articlesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 0 || resp.Pagination.LastID != nil || resp.Pagination.HasMore {
		t.Errorf("expected empty envelope, got %+v", resp)
	}
	if resp.Pagination.Limit != query.DefaultLimit {
		t.Errorf("limit = %d, want default", resp.Pagination.Limit)
	}
}

func TestUpsertSources(t *testing.T) {
	e, _ := newTestRouter(t, "")

	single := `{"id":"alpha","name":"Alpha","url":"https://a.example/rss","homepage":"https://a.example","locale":"en"}`
	rec := doRequest(e, http.MethodPost, "/api/sources", single, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("single upsert status = %d: %s", rec.Code, rec.Body.String())
	}

	array := `[{"id":"beta","name":"Beta","url":"https://b.example/rss","homepage":"https://b.example","locale":"np","logo":"https://b.example/logo.png"}]`
	rec = doRequest(e, http.MethodPost, "/api/sources", array, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("array upsert status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodGet, "/api/sources", "", nil)
	var resp struct {
		Success bool `json:"success"`
		Data    []struct {
			ID   string  `json:"id"`
			Logo *string `json:"logo"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Data))
	}
	if resp.Data[0].ID != "alpha" || resp.Data[1].ID != "beta" {
		t.Errorf("unexpected order: %+v", resp.Data)
	}
	if resp.Data[1].Logo == nil || *resp.Data[1].Logo != "https://b.example/logo.png" {
		t.Errorf("logo not stored: %+v", resp.Data[1])
	}
}

func TestUpsertSourcesValidation(t *testing.T) {
	valid := func(id string) string {
		return fmt.Sprintf(`{"id":%q,"name":"N","url":"https://u.example/rss","homepage":"https://u.example","locale":"en"}`, id)
	}

	oversized := make([]string, 51)
	for i := range oversized {
		oversized[i] = valid(fmt.Sprintf("s%d", i))
	}

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not json"},
		{name: "empty array", body: "[]"},
		{name: "batch over 50", body: "[" + strings.Join(oversized, ",") + "]"},
		{name: "missing fields", body: `{"id":"x","name":"X"}`},
		{name: "non-http feed url", body: `{"id":"x","name":"X","url":"ftp://u.example/rss","homepage":"https://u.example","locale":"en"}`},
		{name: "bad homepage", body: `{"id":"x","name":"X","url":"https://u.example/rss","homepage":"javascript:alert(1)","locale":"en"}`},
		{name: "bad id characters", body: valid("bad id!")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, store := newTestRouter(t, "")
			rec := doRequest(e, http.MethodPost, "/api/sources", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			// Rejection is batch-atomic: nothing may have been written.
			sources, err := store.ListSources(context.Background())
			if err != nil {
				t.Fatalf("list sources: %v", err)
			}
			if len(sources) != 0 {
				t.Errorf("expected no sources written, got %d", len(sources))
			}
		})
	}
}

func TestUpsertSourcesRequiresAPIKey(t *testing.T) {
	body := `{"id":"alpha","name":"Alpha","url":"https://a.example/rss","homepage":"https://a.example","locale":"en"}`

	e, _ := newTestRouter(t, "sekret")

	rec := doRequest(e, http.MethodPost, "/api/sources", body, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key status = %d, want 401", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/api/sources", body, map[string]string{"X-API-Key": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d, want 401", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/api/sources", body, map[string]string{"X-API-Key": "sekret"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("header key status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodPost, "/api/sources", body, map[string]string{"Authorization": "Bearer sekret"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("bearer key status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	// Reads stay open.
	rec = doRequest(e, http.MethodGet, "/api/sources", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("read status = %d, want 200", rec.Code)
	}
}
