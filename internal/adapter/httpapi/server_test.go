package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devsolver/internal/adapter/store"
	"devsolver/internal/domain"
	"devsolver/internal/usecase"
)

type stubSearcher struct {
	results []domain.ScoredResult
	err     error
	got     struct {
		query, tech string
		topK        int
		source      domain.SourceLabel
	}
}

func (s *stubSearcher) HybridSearch(ctx context.Context, query, technology string, topK int, source domain.SourceLabel) ([]domain.ScoredResult, error) {
	s.got.query, s.got.tech, s.got.topK, s.got.source = query, technology, topK, source
	return s.results, s.err
}

type stubAnswerer struct {
	got domain.Question
}

func (s *stubAnswerer) Answer(ctx context.Context, q domain.Question) (*domain.Answer, error) {
	s.got = q
	return &domain.Answer{
		Query:    q.Query,
		Official: &domain.Solution{SourceLabel: domain.SourceOfficial, Answer: "use merge"},
	}, nil
}

type stubCatalog struct{}

func (stubCatalog) Technologies(ctx context.Context) ([]string, error) {
	return []string{"go", "python"}, nil
}

func (stubCatalog) Stats(ctx context.Context, technology string) (domain.StoreStats, error) {
	if technology != "python" {
		return domain.StoreStats{}, fmt.Errorf("technology %s: %w", technology, store.ErrNotFound)
	}
	return domain.StoreStats{Technology: "python", Documents: 2, Chunks: 5, Embeddings: 5}, nil
}

type stubIngester struct {
	err error
}

func (s *stubIngester) IngestText(ctx context.Context, technology string, meta domain.SourceMeta, content string) (domain.SourceMeta, error) {
	if s.err != nil {
		return domain.SourceMeta{}, s.err
	}
	meta.DocumentID = "doc-1"
	meta.ChunkCount = 1
	return meta, nil
}

func (s *stubIngester) IngestURL(ctx context.Context, technology, url string, label domain.SourceLabel) (domain.SourceMeta, error) {
	if s.err != nil {
		return domain.SourceMeta{}, s.err
	}
	return domain.SourceMeta{DocumentID: "doc-2", URL: url, Label: label, Title: "fetched"}, nil
}

func newTestServer(searcher *stubSearcher, ingester Ingester) *Server {
	if searcher == nil {
		searcher = &stubSearcher{}
	}
	return NewServer(":0", NewRequestHandler(searcher, &stubAnswerer{}, stubCatalog{}, ingester), nil)
}

func do(t *testing.T, s *Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func TestHealthy(t *testing.T) {
	resp, body := do(t, newTestServer(nil, nil), http.MethodGet, "/check/healthy", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["result"])
}

func TestSearch(t *testing.T) {
	searcher := &stubSearcher{results: []domain.ScoredResult{{
		Chunk:       domain.Chunk{ID: "d1-chunk-0", DocumentID: "d1", Content: "pandas merge"},
		Score:       0.8,
		SourceLabel: domain.SourceOfficial,
	}}}
	s := newTestServer(searcher, nil)

	resp, body := do(t, s, http.MethodPost, "/api/v1/search",
		`{"query":"merge","technology":"python","top_k":3,"source":"official"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "merge", searcher.got.query)
	assert.Equal(t, "python", searcher.got.tech)
	assert.Equal(t, 3, searcher.got.topK)
	assert.Equal(t, domain.SourceOfficial, searcher.got.source)

	results := body["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "official", results[0].(map[string]any)["source_label"])
}

func TestSearch_EmptyResultsIsArray(t *testing.T) {
	resp, body := do(t, newTestServer(nil, nil), http.MethodPost, "/api/v1/search",
		`{"query":"merge","technology":"python"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["results"])
}

func TestSearch_Validation(t *testing.T) {
	resp, body := do(t, newTestServer(nil, nil), http.MethodPost, "/api/v1/search",
		`{"query":"","technology":"python","top_k":99,"source":"blog"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "query")
	assert.Contains(t, errs, "top_k")
	assert.Contains(t, errs, "source")
	assert.NotContains(t, errs, "technology")
}

func TestSearch_BadJSON(t *testing.T) {
	resp, body := do(t, newTestServer(nil, nil), http.MethodPost, "/api/v1/search", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid JSON request", body["error"])
}

func TestSearch_InternalError(t *testing.T) {
	s := newTestServer(&stubSearcher{err: errors.New("boom")}, nil)
	resp, body := do(t, s, http.MethodPost, "/api/v1/search", `{"query":"q","technology":"python"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", body["error"])
}

func TestAsk(t *testing.T) {
	answerer := &stubAnswerer{}
	s := NewServer(":0", NewRequestHandler(&stubSearcher{}, answerer, stubCatalog{}, nil), nil)

	resp, body := do(t, s, http.MethodPost, "/api/v1/ask",
		`{"query":"how to merge","technology":"python","preference":"official","code_context":"df"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, domain.PreferOfficial, answerer.got.Preference)
	assert.Equal(t, "df", answerer.got.CodeContext)
	official := body["official_solution"].(map[string]any)
	assert.Equal(t, "use merge", official["answer"])
	assert.NotContains(t, body, "community_solution")
}

func TestAsk_Validation(t *testing.T) {
	resp, body := do(t, newTestServer(nil, nil), http.MethodPost, "/api/v1/ask",
		`{"query":"q","technology":"python","preference":"everything"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body["errors"], "preference")
}

func TestTechnologiesAndStats(t *testing.T) {
	s := newTestServer(nil, nil)

	resp, body := do(t, s, http.MethodGet, "/api/v1/technologies", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"go", "python"}, body["technologies"])

	resp, body = do(t, s, http.MethodGet, "/api/v1/technologies/python/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["chunks"])

	resp, body = do(t, s, http.MethodGet, "/api/v1/technologies/rust/stats", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "technology with rust not found", body["error"])
}

func TestAddDocument(t *testing.T) {
	s := newTestServer(nil, &stubIngester{})

	resp, body := do(t, s, http.MethodPost, "/api/v1/documents",
		`{"technology":"python","label":"community","title":"Tip","content":"use merge"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "doc-1", body["document_id"])
	assert.Equal(t, "community", body["label"])

	resp, body = do(t, s, http.MethodPost, "/api/v1/documents",
		`{"technology":"python","label":"official","url":"https://docs.python.org/3/"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "doc-2", body["document_id"])
}

func TestAddDocument_Errors(t *testing.T) {
	resp, body := do(t, newTestServer(nil, &stubIngester{}), http.MethodPost, "/api/v1/documents",
		`{"technology":"python","label":"official"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	errs := body["errors"].(map[string]any)
	assert.Contains(t, errs, "url")
	assert.Contains(t, errs, "content")

	resp, _ = do(t, newTestServer(nil, &stubIngester{err: usecase.ErrNoContent}), http.MethodPost, "/api/v1/documents",
		`{"technology":"python","label":"official","content":" "}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = do(t, newTestServer(nil, nil), http.MethodPost, "/api/v1/documents",
		`{"technology":"python","label":"official","content":"x"}`)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
