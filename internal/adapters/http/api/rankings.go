package api

import (
	"net/http"

	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/model"
)

// RankingsHandler serves ranking lifecycle routes.
type RankingsHandler struct {
	deps Dependencies
	errs *errorWriter
}

// HandleCreate handles POST /rankings.
func (h *RankingsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	v, err := h.deps.CreateRanking(r.Context(), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// HandleList handles GET /rankings.
func (h *RankingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Rankings(r.Context()))
}

// HandleGet handles GET /rankings/{id}.
func (h *RankingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.Ranking(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// HandleDelete handles DELETE /rankings/{id}.
func (h *RankingsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteRanking(r.Context(), r.PathValue("id")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSnapshot handles GET /rankings/{id}/snapshot.
func (h *RankingsHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleRestore handles POST /rankings/{id}/restore with a snapshot body.
func (h *RankingsHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	var snap model.RankingSnapshot
	if err := decode(w, r, &snap); err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.deps.Restore(r.Context(), r.PathValue("id"), snap)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
