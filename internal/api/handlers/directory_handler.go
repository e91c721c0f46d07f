package handlers

import (
	"net/http"

	"github.com/isdelr/telemed-portal/internal/auth"
	"github.com/isdelr/telemed-portal/internal/models"
	"github.com/isdelr/telemed-portal/internal/services"
)

// DirectoryHandler handles the hospital and insurance plan directories.
type DirectoryHandler struct {
	service services.DirectoryServiceProvider
}

// NewDirectoryHandler creates a new DirectoryHandler.
func NewDirectoryHandler(service services.DirectoryServiceProvider) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

// ListHospitals handles listing every hospital.
func (h *DirectoryHandler) ListHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := h.service.ListHospitals(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hospitals)
}

// SearchHospitals handles lookup by location. An unknown location is a 404.
func (h *DirectoryHandler) SearchHospitals(w http.ResponseWriter, r *http.Request) {
	hospitals, err := h.service.SearchHospitals(r.Context(), r.URL.Query().Get("loc"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(hospitals) == 0 {
		writeError(w, http.StatusNotFound, "no hospitals at this location")
		return
	}
	writeJSON(w, http.StatusOK, hospitals)
}

// CreateHospital handles adding a hospital.
func (h *DirectoryHandler) CreateHospital(w http.ResponseWriter, r *http.Request) {
	var payload models.Hospital
	if !decodeJSON(w, r, &payload) {
		return
	}
	hospital, err := h.service.CreateHospital(r.Context(), auth.CurrentUser(r.Context()), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hospital)
}

// ListInsurancePlans handles listing every insurance plan.
func (h *DirectoryHandler) ListInsurancePlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListInsurancePlans(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plans)
}

// CreateInsurancePlan handles adding an insurance plan.
func (h *DirectoryHandler) CreateInsurancePlan(w http.ResponseWriter, r *http.Request) {
	var payload models.InsurancePlan
	if !decodeJSON(w, r, &payload) {
		return
	}
	plan, err := h.service.CreateInsurancePlan(r.Context(), auth.CurrentUser(r.Context()), payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, plan)
}
