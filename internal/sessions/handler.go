package sessions

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/matchflow/pkg/handlers"
	"github.com/JaimeStill/matchflow/pkg/pagination"
	"github.com/JaimeStill/matchflow/pkg/routes"
)

// Handler serves read-only session endpoints.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler over the given store.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "sessions"),
		pagination: pagination,
	}
}

// Routes returns the session read endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/workflow",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List, OpenAPI: listOp},
			{Method: "GET", Pattern: "/{sessionId}/status", Handler: h.Status, OpenAPI: statusOp},
			{Method: "GET", Pattern: "/{sessionId}/exceptions", Handler: h.Exceptions, OpenAPI: exceptionsOp},
		},
	}
}

// List returns a page of sessions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	page := pagination.FromQuery(values, h.pagination)
	filters := FiltersFromQuery(values)

	if filters.Status != nil && !validStatus(*filters.Status) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("unknown status: %s", *filters.Status))
		return
	}
	if filters.SourceType != nil && !filters.SourceType.Valid() {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, fmt.Errorf("unknown sourceType: %s", *filters.SourceType))
		return
	}

	result, err := h.sys.List(r.Context(), page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, result)
}

// Status returns the current session snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	s, err := h.sys.Read(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, s)
}

// Exceptions returns the session's exceptions oldest first.
func (h *Handler) Exceptions(w http.ResponseWriter, r *http.Request) {
	exs, err := h.sys.Exceptions(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}
	handlers.RespondJSON(w, http.StatusOK, exs)
}

func validStatus(s OverallStatus) bool {
	switch s {
	case StatusInitializing, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}
