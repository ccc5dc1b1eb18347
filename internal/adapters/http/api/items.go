package api

import (
	"net/http"

	"github.com/okian/podium/internal/domain/model"
)

// ItemsHandler serves a ranking's backlog.
type ItemsHandler struct {
	deps Dependencies
	errs *errorWriter
}

type addItemsRequest struct {
	Items []model.ItemSnapshot `json:"items"`
}

// HandleList handles GET /rankings/{id}/items.
func (h *ItemsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Items(r.Context(), r.PathValue("id"))
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleAdd handles POST /rankings/{id}/items.
func (h *ItemsHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req addItemsRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	entries, err := h.deps.AddItems(r.Context(), r.PathValue("id"), req.Items)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleRemove handles DELETE /rankings/{id}/items/{item}.
func (h *ItemsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.RemoveItem(r.Context(), r.PathValue("id"), r.PathValue("item")); err != nil {
		h.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
