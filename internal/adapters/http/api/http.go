// Package api wires the HTTP surface of the ranking service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/magnet"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/internal/domain/views"
	"github.com/okian/podium/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers.
type Dependencies interface {
	CreateRanking(ctx context.Context, req service.CreateRequest) (service.RankingView, error)
	DeleteRanking(ctx context.Context, id string) error
	Rankings(ctx context.Context) []service.RankingView
	Ranking(ctx context.Context, id string) (service.RankingView, error)
	Snapshot(ctx context.Context, id string) (model.RankingSnapshot, error)
	Restore(ctx context.Context, id string, snap model.RankingSnapshot) (service.RestoreResult, error)

	Items(ctx context.Context, id string) ([]types.BacklogEntry, error)
	AddItems(ctx context.Context, id string, items []model.ItemSnapshot) ([]types.BacklogEntry, error)
	RemoveItem(ctx context.Context, id, itemID string) error

	Transfer(ctx context.Context, id string, req service.TransferRequest) (transfer.Result, error)
	Suggest(ctx context.Context, id string, req service.SuggestRequest) (magnet.Result, error)

	ExportTiers(ctx context.Context, id string, cfg views.TierConfig) ([]views.TierGroup, error)
	ImportTiers(ctx context.Context, id string, cfg views.TierConfig, groups []views.TierGroup) (service.RankingView, error)
	ExportBracket(ctx context.Context, id string, cfg views.BracketConfig) (views.Bracket, error)
	ImportBracket(ctx context.Context, id string, st views.Standings) (service.RankingView, error)
}

// Server wires HTTP routes for the ranking API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	rankingsHandler *RankingsHandler
	itemsHandler    *ItemsHandler
	transferHandler *TransferHandler
	viewsHandler    *ViewsHandler
	logger          logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	errs := &errorWriter{logger: s.logger}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.rankingsHandler = &RankingsHandler{deps: deps, errs: errs}
	s.itemsHandler = &ItemsHandler{deps: deps, errs: errs}
	s.transferHandler = &TransferHandler{deps: deps, errs: errs}
	s.viewsHandler = &ViewsHandler{deps: deps, errs: errs}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, MetricsMiddleware(h, endpoint))
	}

	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /stats", "stats", s.statsHandler.HandleStats)

	route("POST /rankings", "rankings", s.rankingsHandler.HandleCreate)
	route("GET /rankings", "rankings", s.rankingsHandler.HandleList)
	route("GET /rankings/{id}", "ranking", s.rankingsHandler.HandleGet)
	route("DELETE /rankings/{id}", "ranking", s.rankingsHandler.HandleDelete)
	route("GET /rankings/{id}/snapshot", "snapshot", s.rankingsHandler.HandleSnapshot)
	route("POST /rankings/{id}/restore", "restore", s.rankingsHandler.HandleRestore)

	route("GET /rankings/{id}/items", "items", s.itemsHandler.HandleList)
	route("POST /rankings/{id}/items", "items", s.itemsHandler.HandleAdd)
	route("DELETE /rankings/{id}/items/{item}", "items", s.itemsHandler.HandleRemove)

	route("POST /rankings/{id}/transfers", "transfers", s.transferHandler.HandleTransfer)
	route("POST /rankings/{id}/suggestions", "suggestions", s.transferHandler.HandleSuggest)

	route("POST /rankings/{id}/tiers/export", "tiers", s.viewsHandler.HandleExportTiers)
	route("POST /rankings/{id}/tiers/import", "tiers", s.viewsHandler.HandleImportTiers)
	route("POST /rankings/{id}/bracket/export", "bracket", s.viewsHandler.HandleExportBracket)
	route("POST /rankings/{id}/bracket/import", "bracket", s.viewsHandler.HandleImportBracket)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

type errorWriter struct {
	logger logger.Logger
}

// write maps service errors onto status codes.
func (e *errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, service.ErrRankingNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrRankingExists):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, validation.ErrConcurrentTransfer):
		writeError(w, http.StatusLocked, "locked", err)
	case errors.Is(err, validation.ErrUnknown):
		e.serverError(w, r, err)
	case errors.Is(err, views.ErrImportFailed):
		writeError(w, http.StatusConflict, "import_failed", err)
	default:
		e.serverError(w, r, err)
	}
}

func (e *errorWriter) serverError(w http.ResponseWriter, r *http.Request, err error) {
	e.logger.Error(r.Context(), "request failed",
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}

// transferStatus picks the status of a transfer result: rejections are
// conflicts, lock blocks are 423 so clients can retry.
func transferStatus(res transfer.Result) int {
	switch {
	case res.Success:
		return http.StatusOK
	case res.Code == validation.CodeUnknownError:
		return http.StatusInternalServerError
	case res.Transient:
		return http.StatusLocked
	default:
		return http.StatusConflict
	}
}
