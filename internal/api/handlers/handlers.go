// Package handlers exposes the ingestion and summary endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/api/middleware"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/pipeline"
	"github.com/KB-ITYL-Banklab/Banklab-backend-sub002/internal/store"
)

// IngestionsHandler triggers ingestion runs and reports their status.
type IngestionsHandler struct {
	coord *pipeline.Coordinator
	runs  store.RunRepository
	log   zerolog.Logger
}

// NewIngestionsHandler creates a new ingestions handler.
func NewIngestionsHandler(coord *pipeline.Coordinator, runs store.RunRepository, log zerolog.Logger) *IngestionsHandler {
	return &IngestionsHandler{coord: coord, runs: runs, log: log}
}

type createIngestionRequest struct {
	AccountID string `json:"account_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// CreateIngestion handles POST /api/ingestions. The run is asynchronous: the
// response carries the batch id to poll, not the result.
func (h *IngestionsHandler) CreateIngestion(w http.ResponseWriter, r *http.Request) {
	var req createIngestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	from, err := time.ParseInLocation(store.DateFormat, req.From, time.UTC)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.ParseInLocation(store.DateFormat, req.To, time.UTC)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
		return
	}
	if to.Before(from) {
		middleware.WriteError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	batchID, err := h.coord.RequestFetch(r.Context(), req.AccountID, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", req.AccountID).Msg("Failed to request ingestion")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to request ingestion")
		return
	}

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"batch_id": batchID,
		"status":   string(store.RunRequested),
	})
}

type runResponse struct {
	BatchID      string  `json:"batch_id"`
	AccountID    string  `json:"account_id"`
	From         string  `json:"from"`
	To           string  `json:"to"`
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	ArchiveURI   string  `json:"archive_uri,omitempty"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   *string `json:"finished_at,omitempty"`
}

// GetIngestion handles GET /api/ingestions/{batch_id}.
func (h *IngestionsHandler) GetIngestion(w http.ResponseWriter, r *http.Request, batchID string) {
	run, err := h.runs.GetRun(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Ingestion run not found")
			return
		}
		h.log.Error().Err(err).Str("batch_id", batchID).Msg("Failed to load ingestion run")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load ingestion run")
		return
	}

	resp := runResponse{
		BatchID:      run.BatchID,
		AccountID:    run.AccountID,
		From:         run.From.Format(store.DateFormat),
		To:           run.To.Format(store.DateFormat),
		Status:       string(run.Status),
		ErrorMessage: run.ErrorMessage,
		ArchiveURI:   run.ArchiveURI,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		resp.FinishedAt = &s
	}
	middleware.WriteJSON(w, http.StatusOK, resp)
}

// SummariesHandler serves the precomputed rollups.
type SummariesHandler struct {
	summaries store.SummaryRepository
	log       zerolog.Logger
}

// NewSummariesHandler creates a new summaries handler.
func NewSummariesHandler(summaries store.SummaryRepository, log zerolog.Logger) *SummariesHandler {
	return &SummariesHandler{summaries: summaries, log: log}
}

// ListDaily handles GET /api/summaries/daily?account_id=&from=&to=.
func (h *SummariesHandler) ListDaily(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	from, err := time.ParseInLocation(store.DateFormat, r.URL.Query().Get("from"), time.UTC)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "from must be a YYYY-MM-DD date")
		return
	}
	to, err := time.ParseInLocation(store.DateFormat, r.URL.Query().Get("to"), time.UTC)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "to must be a YYYY-MM-DD date")
		return
	}

	summaries, err := h.summaries.FindDaily(r.Context(), accountID, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to list daily summaries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list daily summaries")
		return
	}

	out := make([]map[string]interface{}, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, map[string]interface{}{
			"account_id":    s.AccountID,
			"date":          s.Date.Format(store.DateFormat),
			"total_income":  s.TotalIncome,
			"total_expense": s.TotalExpense,
			"by_category":   s.ByCategory,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": out,
		"count":     len(out),
	})
}

// ListMonthly handles GET /api/summaries/monthly?account_id=&from=&to=.
// from and to are YYYY-MM months.
func (h *SummariesHandler) ListMonthly(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	fromMonth := r.URL.Query().Get("from")
	toMonth := r.URL.Query().Get("to")
	for _, m := range []string{fromMonth, toMonth} {
		if _, err := time.ParseInLocation(store.MonthFormat, m, time.UTC); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "from and to must be YYYY-MM months")
			return
		}
	}

	summaries, err := h.summaries.FindMonthly(r.Context(), accountID, fromMonth, toMonth)
	if err != nil {
		h.log.Error().Err(err).Str("account_id", accountID).Msg("Failed to list monthly summaries")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list monthly summaries")
		return
	}

	out := make([]map[string]interface{}, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, map[string]interface{}{
			"account_id":    s.AccountID,
			"month":         s.Month,
			"total_income":  s.TotalIncome,
			"total_expense": s.TotalExpense,
			"by_category":   s.ByCategory,
		})
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"summaries": out,
		"count":     len(out),
	})
}

// NewRouter assembles the full API handler with the middleware chain.
func NewRouter(ingestions *IngestionsHandler, summaries *SummariesHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/ingestions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			ingestions.CreateIngestion(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ingestions/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			batchID := strings.TrimPrefix(r.URL.Path, "/api/ingestions/")
			if batchID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Batch ID is required")
				return
			}
			ingestions.GetIngestion(w, r, batchID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summaries/daily", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			summaries.ListDaily(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summaries/monthly", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			summaries.ListMonthly(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)
}
