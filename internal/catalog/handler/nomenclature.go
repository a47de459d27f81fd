package handler

import (
	"net/http"
	"strconv"

	"github.com/cellbank/cellbank-backend/internal/catalog/repository"
	"github.com/cellbank/cellbank-backend/pkg/errors"
	"github.com/cellbank/cellbank-backend/pkg/httputil"
	"github.com/cellbank/cellbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// NomenclatureHandler handles catalog endpoints
type NomenclatureHandler struct {
	repo   *repository.NomenclatureRepository
	logger *logger.Logger
}

// NewNomenclatureHandler creates a new nomenclature handler
func NewNomenclatureHandler(repo *repository.NomenclatureRepository, log *logger.Logger) *NomenclatureHandler {
	return &NomenclatureHandler{
		repo:   repo,
		logger: log,
	}
}

// NomenclatureRequest is the payload for creating or updating a catalog entry.
type NomenclatureRequest struct {
	Name            string  `json:"name" validate:"required,max=255"`
	Category        string  `json:"category" validate:"required"`
	Unit            string  `json:"unit" validate:"required,max=32"`
	ContainerTypeID *string `json:"container_type_id,omitempty" validate:"omitempty,uuid"`
	Notes           *string `json:"notes,omitempty"`
}

// Create creates a new nomenclature item
func (h *NomenclatureHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req NomenclatureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if !repository.IsValidCategory(req.Category) {
		httputil.Error(w, errors.Validation(map[string]string{
			"category": "must be one of the known categories",
		}))
		return
	}

	item := &repository.NomenclatureItem{
		Name:            req.Name,
		Category:        req.Category,
		Unit:            req.Unit,
		ContainerTypeID: req.ContainerTypeID,
		Notes:           req.Notes,
		IsActive:        true,
	}
	if err := h.repo.Create(r.Context(), item); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, item)
}

// Get gets a nomenclature item by ID
func (h *NomenclatureHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// List lists nomenclature items
func (h *NomenclatureHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	if perPage < 1 || perPage > 100 {
		perPage = 50
	}
	filter := repository.NomenclatureFilter{
		Category:   q.Get("category"),
		Search:     q.Get("search"),
		ActiveOnly: q.Get("include_inactive") != "true",
		Page:       page,
		PerPage:    perPage,
	}
	if filter.Category != "" && !repository.IsValidCategory(filter.Category) {
		httputil.Error(w, errors.Validation(map[string]string{
			"category": "must be one of the known categories",
		}))
		return
	}

	items, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	totalPages := int(total) / filter.PerPage
	if int(total)%filter.PerPage > 0 {
		totalPages++
	}

	httputil.JSONWithMeta(w, http.StatusOK, items, &httputil.Meta{
		Page:       filter.Page,
		PerPage:    filter.PerPage,
		Total:      total,
		TotalPages: totalPages,
	})
}

// Update updates a nomenclature item
func (h *NomenclatureHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req NomenclatureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}
	if !repository.IsValidCategory(req.Category) {
		httputil.Error(w, errors.Validation(map[string]string{
			"category": "must be one of the known categories",
		}))
		return
	}

	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	item.Name = req.Name
	item.Category = req.Category
	item.Unit = req.Unit
	item.ContainerTypeID = req.ContainerTypeID
	item.Notes = req.Notes
	if err := h.repo.Update(r.Context(), item); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, item)
}

// Deactivate retires a nomenclature item
func (h *NomenclatureHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.repo.Deactivate(r.Context(), id); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.NoContent(w)
}
