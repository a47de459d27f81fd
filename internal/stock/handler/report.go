package handler

import (
	"net/http"
	"strconv"

	"github.com/cellbank/cellbank-backend/internal/stock/repository"
	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// ReportHandler handles stock level and reporting endpoints
type ReportHandler struct {
	service   *service.LedgerService
	batchRepo *repository.BatchRepository
	logger    *logger.Logger
}

// NewReportHandler creates a new report handler
func NewReportHandler(svc *service.LedgerService, batchRepo *repository.BatchRepository, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service:   svc,
		batchRepo: batchRepo,
		logger:    log,
	}
}

// StockLevel aggregates usable stock of one nomenclature item
func (h *ReportHandler) StockLevel(w http.ResponseWriter, r *http.Request) {
	nomenclatureID := chi.URLParam(r, "id")
	includeBatches := r.URL.Query().Get("include_batches") == "true"

	level, err := h.service.AvailableStock(r.Context(), nomenclatureID, includeBatches)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, level)
}

// Expiring lists batches expiring within the requested window
func (h *ReportHandler) Expiring(w http.ResponseWriter, r *http.Request) {
	withinDays, _ := strconv.Atoi(r.URL.Query().Get("within_days"))
	if withinDays < 1 {
		withinDays = 14
	}

	batches, err := h.batchRepo.GetExpiringBatches(r.Context(), withinDays)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// Summary aggregates the whole ledger for the dashboard
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetStockSummary(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, summary)
}
