package api

import (
	"net/http"

	service "github.com/okian/podium/internal/app"
)

// TransferHandler serves drops and drag suggestions.
type TransferHandler struct {
	deps Dependencies
	errs *errorWriter
}

// HandleTransfer handles POST /rankings/{id}/transfers. The body of a
// rejected transfer is still the full result, with its code.
func (h *TransferHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req service.TransferRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.deps.Transfer(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, transferStatus(res), res)
}

// HandleSuggest handles POST /rankings/{id}/suggestions.
func (h *TransferHandler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	var req service.SuggestRequest
	if err := decode(w, r, &req); err != nil {
		h.errs.write(w, r, err)
		return
	}
	res, err := h.deps.Suggest(r.Context(), r.PathValue("id"), req)
	if err != nil {
		h.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
