package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarofin/statements/internal/extractor"
	"github.com/clarofin/statements/internal/pipeline"
	"github.com/clarofin/statements/internal/statement"
	"github.com/clarofin/statements/internal/store"
)

type stubRunner struct {
	result *pipeline.Result
	err    error
}

func (s *stubRunner) Run(_ context.Context, _ []byte, _ pipeline.Options) (*pipeline.Result, error) {
	return s.result, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func assembledResult() *pipeline.Result {
	txID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	return &pipeline.Result{
		Status: pipeline.StatusAssembled,
		Statement: statement.ProcessedStatement{
			ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
			Transactions: []statement.Transaction{
				{
					ID:          txID,
					Date:        time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
					Description: "CONTINENTE LISBOA",
					Amount:      decimal.RequireFromString("-30.00"),
					Direction:   statement.Debit,
					Category:    "groceries",
				},
			},
			TotalExpenses: decimal.RequireFromString("30.00"),
			EndingBalance: decimal.RequireFromString("-30.00"),
			ProcessedAt:   time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC),
		},
	}
}

func uploadRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("statement", "statement.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.7 fake"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func TestProcessStatement(t *testing.T) {
	runner := &stubRunner{result: assembledResult()}
	srv := New(runner, store.NewMemory(), testLogger(), Config{})
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "/v1/statements"))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status  string `json:"status"`
		SavedAt string `json:"saved_at"`
		Statement struct {
			ID string `json:"id"`
		} `json:"statement"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "assembled", resp.Status)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", resp.Statement.ID)
	assert.NotEmpty(t, resp.SavedAt)
}

func TestProcessStatement_EmptyDocument(t *testing.T) {
	runner := &stubRunner{err: &pipeline.StageError{
		Stage: pipeline.StageExtracting,
		Err:   extractor.ErrEmptyDocument,
	}}
	srv := New(runner, store.NewMemory(), testLogger(), Config{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, uploadRequest(t, "/v1/statements"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var resp struct {
		Stage string `json:"stage"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "extracting", resp.Stage)
}

func TestProcessStatement_UnsupportedFormat(t *testing.T) {
	runner := &stubRunner{err: &pipeline.StageError{
		Stage: pipeline.StageExtracting,
		Err:   extractor.ErrUnsupportedFormat,
	}}
	srv := New(runner, store.NewMemory(), testLogger(), Config{})

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, uploadRequest(t, "/v1/statements"))

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestProcessStatement_RawBody(t *testing.T) {
	runner := &stubRunner{result: assembledResult()}
	srv := New(runner, store.NewMemory(), testLogger(), Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/statements", bytes.NewReader([]byte("%PDF-1.7 fake")))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessStatement_EmptyBody(t *testing.T) {
	srv := New(&stubRunner{}, store.NewMemory(), testLogger(), Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/statements", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimit(t *testing.T) {
	runner := &stubRunner{result: assembledResult()}
	srv := New(runner, store.NewMemory(), testLogger(), Config{
		RateLimitPerSecond: 1,
		RateLimitBurst:     1,
	})
	handler := srv.Routes()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "/v1/statements"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, uploadRequest(t, "/v1/statements"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestGetStatement(t *testing.T) {
	mem := store.NewMemory()
	result := assembledResult()
	_, err := mem.SaveStatement(context.Background(), &result.Statement)
	require.NoError(t, err)

	srv := New(&stubRunner{}, mem, testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements/"+result.Statement.ID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var st statement.ProcessedStatement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, result.Statement.ID, st.ID)
	assert.Len(t, st.Transactions, 1)
}

func TestGetStatement_NotFound(t *testing.T) {
	srv := New(&stubRunner{}, store.NewMemory(), testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStatement_BadID(t *testing.T) {
	srv := New(&stubRunner{}, store.NewMemory(), testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListStatements(t *testing.T) {
	mem := store.NewMemory()
	result := assembledResult()
	_, err := mem.SaveStatement(context.Background(), &result.Statement)
	require.NoError(t, err)

	srv := New(&stubRunner{}, mem, testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements?limit=10", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Statements []store.StatementSummary `json:"statements"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Statements, 1)
	assert.Equal(t, 1, resp.Statements[0].TransactionCount)
}

func TestExportCSV(t *testing.T) {
	mem := store.NewMemory()
	result := assembledResult()
	_, err := mem.SaveStatement(context.Background(), &result.Statement)
	require.NoError(t, err)

	srv := New(&stubRunner{}, mem, testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements/"+result.Statement.ID.String()+"/export?format=csv", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "CONTINENTE LISBOA")
}

func TestExport_UnknownFormat(t *testing.T) {
	mem := store.NewMemory()
	result := assembledResult()
	_, err := mem.SaveStatement(context.Background(), &result.Statement)
	require.NoError(t, err)

	srv := New(&stubRunner{}, mem, testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/v1/statements/"+result.Statement.ID.String()+"/export?format=pdf", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := New(&stubRunner{}, store.NewMemory(), testLogger(), Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
