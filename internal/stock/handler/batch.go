package handler

import (
	"net/http"
	"time"

	"github.com/cellbank/cellbank-backend/internal/stock/service"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	service *service.LedgerService
	logger  *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(svc *service.LedgerService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		service: svc,
		logger:  log,
	}
}

// ReceiveRequest is the payload for registering a new batch.
type ReceiveRequest struct {
	NomenclatureID    string           `json:"nomenclature_id" validate:"required,uuid"`
	BatchNumber       string           `json:"batch_number" validate:"required,max=100"`
	Quantity          int              `json:"quantity" validate:"required,gt=0"`
	VolumePerUnit     *decimal.Decimal `json:"volume_per_unit,omitempty"`
	CurrentUnitVolume *decimal.Decimal `json:"current_unit_volume,omitempty"`
	ExpirationDate    *string          `json:"expiration_date,omitempty"`
	Manufacturer      *string          `json:"manufacturer,omitempty"`
	Supplier          *string          `json:"supplier,omitempty"`
	InvoiceNumber     *string          `json:"invoice_number,omitempty"`
	Notes             *string          `json:"notes,omitempty"`
}

// Receive registers a new batch
func (h *BatchHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req ReceiveRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	input := service.ReceiveInput{
		NomenclatureID:    req.NomenclatureID,
		BatchNumber:       req.BatchNumber,
		Quantity:          req.Quantity,
		VolumePerUnit:     req.VolumePerUnit,
		CurrentUnitVolume: req.CurrentUnitVolume,
		Manufacturer:      req.Manufacturer,
		Supplier:          req.Supplier,
		InvoiceNumber:     req.InvoiceNumber,
		Notes:             req.Notes,
		PerformedBy:       performedBy(r),
	}
	if req.ExpirationDate != nil {
		exp, err := time.Parse("2006-01-02", *req.ExpirationDate)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{
				"expiration_date": "must be a date in YYYY-MM-DD format",
			}))
			return
		}
		input.ExpirationDate = &exp
	}

	batch, err := h.service.Receive(r.Context(), input)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Get gets a batch by ID
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// ListByNomenclature lists batches of a nomenclature item, FEFO-ordered
func (h *BatchHandler) ListByNomenclature(w http.ResponseWriter, r *http.Request) {
	nomenclatureID := chi.URLParam(r, "id")

	batches, err := h.service.ListBatches(r.Context(), nomenclatureID)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ConsumeRequest is the payload for drawing stock from one batch.
type ConsumeRequest struct {
	Amount       decimal.Decimal `json:"amount" validate:"required"`
	Reason       string          `json:"reason"`
	OperationRef string          `json:"operation_ref"`
}

// Consume draws stock from a batch
func (h *BatchHandler) Consume(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req ConsumeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.Consume(r.Context(), batchID, req.Amount, req.Reason, req.OperationRef, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// AdjustRequest is the payload for a manual stock correction.
type AdjustRequest struct {
	Delta  decimal.Decimal `json:"delta" validate:"required"`
	Reason string          `json:"reason" validate:"required"`
}

// Adjust corrects the stock of a batch
func (h *BatchHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req AdjustRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.Adjust(r.Context(), batchID, req.Delta, req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// DisposeRequest is the payload for writing off a batch.
type DisposeRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Dispose writes off the remaining stock of a batch
func (h *BatchHandler) Dispose(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	var req DisposeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch, err := h.service.Dispose(r.Context(), batchID, req.Reason, performedBy(r))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batch)
}

// performedBy resolves the acting user from the gateway-injected headers.
func performedBy(r *http.Request) string {
	if email := r.Header.Get("X-User-Email"); email != "" {
		return email
	}
	return r.Header.Get("X-User-ID")
}
