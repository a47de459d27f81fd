package handler

import (
	"net/http"

	"github.com/cellbank/cellbank-backend/internal/catalog/repository"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// ContainerTypeHandler handles container type endpoints
type ContainerTypeHandler struct {
	repo   *repository.ContainerTypeRepository
	logger *logger.Logger
}

// NewContainerTypeHandler creates a new container type handler
func NewContainerTypeHandler(repo *repository.ContainerTypeRepository, log *logger.Logger) *ContainerTypeHandler {
	return &ContainerTypeHandler{
		repo:   repo,
		logger: log,
	}
}

// ContainerTypeRequest is the payload for creating a container type.
type ContainerTypeRequest struct {
	Name                 string           `json:"name" validate:"required,max=255"`
	SurfaceAreaCm2       *decimal.Decimal `json:"surface_area_cm2,omitempty"`
	WorkingVolumeMl      *decimal.Decimal `json:"working_volume_ml,omitempty"`
	OptimalConfluencyPct *decimal.Decimal `json:"optimal_confluency_pct,omitempty"`
}

// Create creates a new container type
func (h *ContainerTypeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ContainerTypeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	ct := &repository.ContainerType{Name: req.Name}
	if req.SurfaceAreaCm2 != nil {
		ct.SurfaceAreaCm2 = decimal.NewNullDecimal(*req.SurfaceAreaCm2)
	}
	if req.WorkingVolumeMl != nil {
		ct.WorkingVolumeMl = decimal.NewNullDecimal(*req.WorkingVolumeMl)
	}
	if req.OptimalConfluencyPct != nil {
		ct.OptimalConfluencyPct = decimal.NewNullDecimal(*req.OptimalConfluencyPct)
	}

	if err := h.repo.Create(r.Context(), ct); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, ct)
}

// Get gets a container type by ID
func (h *ContainerTypeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ct, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, ct)
}

// List lists all container types
func (h *ContainerTypeHandler) List(w http.ResponseWriter, r *http.Request) {
	types, err := h.repo.List(r.Context())
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, types)
}
