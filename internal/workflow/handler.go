package workflow

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/matchflow/pkg/handlers"
	"github.com/JaimeStill/matchflow/pkg/routes"
)

const defaultMaxBody = 1 << 20

// Handler serves workflow submission endpoints.
type Handler struct {
	sys     System
	logger  *slog.Logger
	maxBody int64
}

// NewHandler creates a Handler over the given orchestrator. Request bodies
// larger than maxBody bytes are rejected; zero selects 1 MB.
func NewHandler(sys System, logger *slog.Logger, maxBody int64) *Handler {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Handler{
		sys:     sys,
		logger:  logger.With("handler", "workflow"),
		maxBody: maxBody,
	}
}

// Routes returns the route group for workflow submission.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/workflow",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: h.Submit, OpenAPI: submitOp},
			{Method: "POST", Pattern: "/batch", Handler: h.SubmitBatch, OpenAPI: batchOp},
			{Method: "POST", Pattern: "/{sessionId}/invoke-matching", Handler: h.InvokeMatching, OpenAPI: invokeMatchingOp},
		},
	}
}

// Submit starts a workflow and returns the initial session snapshot.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var sub Submission
	if err := h.decode(w, r, &sub); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	s, err := h.sys.Submit(r.Context(), sub)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, s)
}

// SubmitBatch starts a workflow per document and returns per-document results.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var batch BatchSubmission
	if err := h.decode(w, r, &batch); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	results, err := h.sys.SubmitBatch(r.Context(), batch)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, map[string]any{"results": results})
}

// InvokeMatching triggers match for a session waiting after extract.
func (h *Handler) InvokeMatching(w http.ResponseWriter, r *http.Request) {
	inv, err := h.sys.InvokeMatching(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, inv)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", ErrInvalidSubmission, err)
	}
	return nil
}
