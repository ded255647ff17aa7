// Package server exposes the statement pipeline over HTTP: upload a PDF,
// get back the processed statement; list and fetch stored statements; export
// them as CSV or XLSX.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/clarofin/statements/internal/anomaly"
	"github.com/clarofin/statements/internal/export"
	"github.com/clarofin/statements/internal/extractor"
	"github.com/clarofin/statements/internal/parser"
	"github.com/clarofin/statements/internal/pipeline"
	"github.com/clarofin/statements/internal/statement"
	"github.com/clarofin/statements/internal/store"
	"github.com/clarofin/statements/pkg/money"
)

// Runner is the pipeline surface the server needs.
type Runner interface {
	Run(ctx context.Context, data []byte, opts pipeline.Options) (*pipeline.Result, error)
}

// Server handles statement ingestion and retrieval.
type Server struct {
	runner         Runner
	store          store.Store
	logger         *slog.Logger
	limiter        *rate.Limiter
	maxUploadBytes int64
	currency       string

	baselineMu sync.RWMutex
	baseline   *anomaly.Baseline
}

// Config tunes the server limits.
type Config struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	MaxUploadBytes     int64
	Currency           string
}

// New creates a Server. Zero config fields fall back to sane limits.
func New(runner Runner, st store.Store, logger *slog.Logger, cfg Config) *Server {
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 5
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 16 << 20
	}
	if cfg.Currency == "" {
		cfg.Currency = money.USD
	}
	return &Server{
		runner:         runner,
		store:          st,
		logger:         logger,
		limiter:        rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitBurst),
		maxUploadBytes: cfg.MaxUploadBytes,
		currency:       cfg.Currency,
	}
}

// Routes builds the HTTP mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/statements", s.rateLimited(s.handleProcess))
	mux.HandleFunc("GET /v1/statements", s.handleList)
	mux.HandleFunc("GET /v1/statements/{id}", s.handleGet)
	mux.HandleFunc("GET /v1/statements/{id}/export", s.handleExport)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// handleProcess ingests one uploaded document and returns the pipeline
// result. The statement is persisted before responding; degraded runs still
// return 200 with status partially_assembled.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	data, opts, err := s.readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts.Baseline = s.currentBaseline(r.Context())

	result, err := s.runner.Run(r.Context(), data, opts)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}

	saved, err := s.store.SaveStatement(r.Context(), &result.Statement)
	if err != nil {
		s.logger.Error("statement processed but not saved", "error", err, "statement_id", result.Statement.ID)
		writeError(w, http.StatusInternalServerError, "failed to persist statement")
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Result:  result,
		SavedAt: saved.SavedAt.UTC().Format(timeFormat),
	})
}

// RefreshBaseline recomputes the cached anomaly baseline from the store.
// Called on startup and from the scheduled refresh job.
func (s *Server) RefreshBaseline(ctx context.Context) error {
	baseline, err := s.store.LoadBaseline(ctx)
	if err != nil {
		return fmt.Errorf("refresh baseline: %w", err)
	}
	s.baselineMu.Lock()
	s.baseline = baseline
	s.baselineMu.Unlock()
	s.logger.Info("anomaly baseline refreshed", "merchants", len(baseline.MerchantSeen))
	return nil
}

// currentBaseline returns the cached baseline, loading it from the store on
// first use. A store failure degrades to detection without history.
func (s *Server) currentBaseline(ctx context.Context) *anomaly.Baseline {
	s.baselineMu.RLock()
	cached := s.baseline
	s.baselineMu.RUnlock()
	if cached != nil {
		return cached
	}

	if err := s.RefreshBaseline(ctx); err != nil {
		s.logger.Warn("baseline unavailable, detection runs without history", "error", err)
		return nil
	}
	s.baselineMu.RLock()
	defer s.baselineMu.RUnlock()
	return s.baseline
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	summaries, err := s.store.ListStatements(r.Context(), limit)
	if err != nil {
		s.logger.Error("list statements", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list statements")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Statements: summaries})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	st, ok := s.statementFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleExport streams a stored statement as csv or xlsx.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	st, ok := s.statementFromPath(w, r)
	if !ok {
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.ID.String()+".csv"))
		if err := export.WriteCSV(w, st); err != nil {
			s.logger.Error("csv export", "error", err, "statement_id", st.ID)
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.ID.String()+".xlsx"))
		if err := export.WriteXLSX(w, st, s.currency); err != nil {
			s.logger.Error("xlsx export", "error", err, "statement_id", st.ID)
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown export format: "+format)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) statementFromPath(w http.ResponseWriter, r *http.Request) (*statement.ProcessedStatement, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid statement id")
		return nil, false
	}

	st, err := s.store.GetStatement(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "statement not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("get statement", "error", err, "statement_id", id)
		writeError(w, http.StatusInternalServerError, "failed to load statement")
		return nil, false
	}
	return st, true
}

// readUpload accepts either a multipart form with a "statement" file field
// or raw PDF bytes in the request body.
func (s *Server) readUpload(r *http.Request) ([]byte, pipeline.Options, error) {
	opts := pipeline.Options{}

	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			return nil, opts, fmt.Errorf("parse upload: %w", err)
		}
		file, _, err := r.FormFile("statement")
		if err != nil {
			return nil, opts, fmt.Errorf("missing statement file: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, opts, fmt.Errorf("read upload: %w", err)
		}
		opts.Parser = parserConfigFromForm(r)
		if raw := r.FormValue("starting_balance"); raw != "" {
			balance, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, opts, fmt.Errorf("invalid starting_balance: %w", err)
			}
			opts.StartingBalance = &balance
		}
		return data, opts, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, opts, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, opts, errors.New("empty request body")
	}
	return data, opts, nil
}

func parserConfigFromForm(r *http.Request) parser.Config {
	cfg := parser.Config{DateFormat: r.FormValue("date_format")}
	if raw := r.FormValue("european_format"); raw != "" {
		european := raw == "true" || raw == "1"
		cfg.EuropeanFormat = &european
	}
	return cfg
}

// writePipelineError maps stage failures to status codes: unreadable or
// empty documents are client errors, everything else is a 500.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var stageErr *pipeline.StageError
	stage := ""
	if errors.As(err, &stageErr) {
		stage = string(stageErr.Stage)
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, extractor.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, extractor.ErrCorruptDocument),
		errors.Is(err, extractor.ErrEmptyDocument),
		errors.Is(err, parser.ErrNoTransactions):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = 499 // client closed request
	}

	s.logger.Warn("pipeline run failed", "stage", stage, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Stage: stage})
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

type processResponse struct {
	*pipeline.Result
	SavedAt string `json:"saved_at"`
}

type listResponse struct {
	Statements []store.StatementSummary `json:"statements"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
