package api

import (
	"net/http"

	"github.com/okian/podium/internal/domain/views"
)

// ViewsHandler serves the tier and bracket projections.
type ViewsHandler struct {
	deps Dependencies
	errs *errorWriter
}

type tierImportRequest struct {
	Config views.TierConfig  `json:"config"`
	Groups []views.TierGroup `json:"groups"`
}

// HandleExportTiers handles POST /rankings/{id}/tiers/export with a tier config body.
func (h *ViewsHandler) HandleExportTiers(w http.ResponseWriter, r *http.Request) {
	var cfg views.TierConfig
	if err := decode(w, r, &cfg); err != nil {
		h.errs.write(w, r, err)
		return
	}
	groups, err := h.deps.ExportTiers(r.Context(), r.PathValue("id"), cfg)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// HandleImportTiers handles POST /rankings/{id}/tiers/import.
func (h *ViewsHandler) HandleImportTiers(w http.ResponseWriter, r *http.Request) {
	var req tierImportRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	v, err := h.deps.ImportTiers(r.Context(), r.PathValue("id"), req.Config, req.Groups)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleExportBracket handles POST /rankings/{id}/bracket/export.
func (h *ViewsHandler) HandleExportBracket(w http.ResponseWriter, r *http.Request) {
	var cfg views.BracketConfig
	if err := decode(w, r, &cfg); err != nil {
		h.errs.write(w, r, err)
		return
	}
	b, err := h.deps.ExportBracket(r.Context(), r.PathValue("id"), cfg)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleImportBracket handles POST /rankings/{id}/bracket/import with final standings.
func (h *ViewsHandler) HandleImportBracket(w http.ResponseWriter, r *http.Request) {
	var st views.Standings
	if err := decode(w, r, &st); err != nil {
		h.errs.write(w, r, err)
		return
	}
	v, err := h.deps.ImportBracket(r.Context(), r.PathValue("id"), st)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
