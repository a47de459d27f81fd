package handler

import (
	"net/http"
	"strconv"

	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// MovementHandler handles movement log endpoints
type MovementHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewMovementHandler creates a new movement handler
func NewMovementHandler(svc *service.LedgerService, log *logger.Logger) *MovementHandler {
	return &MovementHandler{
		service: svc,
		logger:  log,
	}
}

// History returns a batch's movement log, newest first
func (h *MovementHandler) History(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")
	page, perPage := pagination(r)

	movements, total, err := h.service.MovementHistory(r.Context(), batchID, page, perPage)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / perPage
	if int(total)%perPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, &httputil.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Reconcile replays a batch's movement log against its live state
func (h *MovementHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	report, err := h.service.Reconcile(r.Context(), batchID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, report)
}

func pagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	return page, perPage
}
