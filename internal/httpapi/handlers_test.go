package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/service"
)

type fakeBackend struct {
	ingestErr error
	queryErr  error
	deleteErr error
	docsErr   error

	gotName    string
	gotContent []byte
	gotQuery   service.QueryRequest
}

func (f *fakeBackend) Ingest(_ context.Context, name string, content []byte) (service.IngestResult, error) {
	f.gotName, f.gotContent = name, content
	if f.ingestErr != nil {
		return service.IngestResult{}, f.ingestErr
	}
	return service.IngestResult{DocumentName: name, PagesProcessed: 2, ChunksCreated: 5, Summary: "About things."}, nil
}

func (f *fakeBackend) Query(_ context.Context, req service.QueryRequest) (service.QueryResult, error) {
	f.gotQuery = req
	if f.queryErr != nil {
		return service.QueryResult{}, f.queryErr
	}
	chunk := domain.TextChunk{DocumentName: "a.pdf", PageNumber: 3, ChunkID: "a.pdf_p3_c0_12345678", Text: "Paris."}
	return service.QueryResult{
		AnswerResult: domain.AnswerResult{
			Answer:  "Paris.",
			Sources: []domain.SourceReference{{DocumentName: "a.pdf", Page: 3, ChunkID: chunk.ChunkID}},
		},
		RetrievedChunks: []domain.RetrievedChunk{{TextChunk: chunk, Score: 0.2}},
	}, nil
}

func (f *fakeBackend) Documents(context.Context) ([]domain.DocumentStat, int, error) {
	if f.docsErr != nil {
		return nil, 0, f.docsErr
	}
	return []domain.DocumentStat{{DocumentName: "a.pdf", ChunkCount: 4}}, 4, nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, name string) (int, error) {
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 4, nil
}

func (f *fakeBackend) Health(context.Context) service.Health {
	return service.Health{Status: "healthy", DocumentsLoaded: 1, TotalChunks: 4}
}

func setupRouter(t *testing.T, backend Backend) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(backend, prometheus.NewRegistry(), nil, Config{MaxUploadBytes: 1 << 20, CORSEnabled: true})
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["detail"]
}

func multipartUpload(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	w := serve(setupRouter(t, &fakeBackend{}), httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","documents_loaded":1,"total_chunks":4}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestUpload(t *testing.T) {
	t.Run("Should ingest the uploaded file", func(t *testing.T) {
		backend := &fakeBackend{}
		w := serve(setupRouter(t, backend), multipartUpload(t, "file", "report.pdf", []byte("%PDF")))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message":"Successfully processed report.pdf","document_name":"report.pdf",
			"pages_processed":2,"chunks_created":5,"summary":"About things."}`, w.Body.String())
		assert.Equal(t, "report.pdf", backend.gotName)
		assert.Equal(t, []byte("%PDF"), backend.gotContent)
	})

	t.Run("Should return 400 without a file field", func(t *testing.T) {
		w := serve(setupRouter(t, &fakeBackend{}), multipartUpload(t, "upload", "x.txt", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, detail(t, w), "file")
	})

	t.Run("Should return 400 for unsupported formats", func(t *testing.T) {
		backend := &fakeBackend{ingestErr: fmt.Errorf("%w: .xlsx", domain.ErrUnsupportedFormat)}
		w := serve(setupRouter(t, backend), multipartUpload(t, "file", "sheet.xlsx", []byte("x")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, detail(t, w), "unsupported format")
	})
}

func TestListDocuments(t *testing.T) {
	w := serve(setupRouter(t, &fakeBackend{}), httptest.NewRequest(http.MethodGet, "/documents", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"documents":[{"document_name":"a.pdf","chunk_count":4}],"total_chunks":4}`, w.Body.String())
}

func TestDeleteDocument(t *testing.T) {
	w := serve(setupRouter(t, &fakeBackend{}), httptest.NewRequest(http.MethodDelete, "/documents/a.pdf", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Successfully deleted a.pdf","document_name":"a.pdf","chunks_deleted":4}`, w.Body.String())

	backend := &fakeBackend{deleteErr: fmt.Errorf("%w: document %q", domain.ErrNotFound, "b.pdf")}
	w = serve(setupRouter(t, backend), httptest.NewRequest(http.MethodDelete, "/documents/b.pdf", http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQuery(t *testing.T) {
	t.Run("Should return answer, sources and retrieved chunks", func(t *testing.T) {
		backend := &fakeBackend{}
		req := httptest.NewRequest(http.MethodPost, "/query",
			strings.NewReader(`{"question":"Capital of France?","top_k":3,"filter_document":"a.pdf"}`))
		req.Header.Set("Content-Type", "application/json")
		w := serve(setupRouter(t, backend), req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{
			"answer":"Paris.",
			"sources":[{"document_name":"a.pdf","page":3,"chunk_id":"a.pdf_p3_c0_12345678","is_section":false}],
			"retrieved_chunks":[{"document_name":"a.pdf","page_number":3,"chunk_id":"a.pdf_p3_c0_12345678","text":"Paris.","is_section":false,"score":0.2}]
		}`, w.Body.String())
		assert.Equal(t, service.QueryRequest{Question: "Capital of France?", TopK: 3, FilterDocument: "a.pdf"}, backend.gotQuery)
	})

	t.Run("Should reject an out of range top_k", func(t *testing.T) {
		for _, body := range []string{`{"question":"q","top_k":0}`, `{"question":"q","top_k":21}`, `not json`} {
			w := serve(setupRouter(t, &fakeBackend{}), httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: no key", domain.ErrConfiguration), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: empty", domain.ErrInvalidInput), http.StatusBadRequest},
		{domain.Upstream("generation", errors.New("rate limited")), http.StatusBadGateway},
		{domain.Upstream("generation", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`))
		w := serve(setupRouter(t, &fakeBackend{queryErr: tc.err}), req)
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.NotEmpty(t, detail(t, w))
	}

	w := serve(setupRouter(t, &fakeBackend{queryErr: errors.New("secret internals")}),
		httptest.NewRequest(http.MethodPost, "/query", strings.NewReader(`{"question":"q"}`)))
	assert.Equal(t, "internal server error", detail(t, w))
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(setupRouter(t, &fakeBackend{}), httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
}
