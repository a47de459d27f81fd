package handler

import (
	"net/http"

	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// AllocationHandler handles multi-batch allocation endpoints
type AllocationHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(svc *service.LedgerService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		service: svc,
		logger:  log,
	}
}

// AllocateRequest is the payload for satisfying a demand across batches.
type AllocateRequest struct {
	NomenclatureID string          `json:"nomenclature_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" validate:"required"`
	Reason         string          `json:"reason"`
	OperationRef   string          `json:"operation_ref"`
}

// Allocate consumes the requested amount across batches in
// first-expired-first-out order, all-or-nothing
func (h *AllocationHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	plan, err := h.service.Allocate(r.Context(), req.NomenclatureID, req.Amount,
		req.Reason, req.OperationRef, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}

// Preview builds the allocation plan without applying it
func (h *AllocationHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	plan, err := h.service.PreviewAllocation(r.Context(), req.NomenclatureID, req.Amount)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, plan)
}
