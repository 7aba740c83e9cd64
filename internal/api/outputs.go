package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/internal/workflow"
	"github.com/JaimeStill/matchflow/pkg/handlers"
	"github.com/JaimeStill/matchflow/pkg/openapi"
	"github.com/JaimeStill/matchflow/pkg/routes"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

// outputsHandler serves archived stage outputs so observers can resolve the
// OutputRef recorded on a stage.
type outputsHandler struct {
	store   storage.System
	session sessions.System
	logger  *slog.Logger
}

func newOutputsHandler(
	store storage.System,
	session sessions.System,
	logger *slog.Logger,
) *outputsHandler {
	return &outputsHandler{
		store:   store,
		session: session,
		logger:  logger.With("handler", "outputs"),
	}
}

func (h *outputsHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/workflow",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{sessionId}/outputs/{stage}", Handler: h.download, OpenAPI: downloadOp},
		},
	}
}

var downloadOp = &openapi.Operation{
	Summary: "Download stage output",
	Tags:    []string{"Sessions"},
	Parameters: []*openapi.Parameter{
		openapi.UUIDPathParam("sessionId", "Workflow session identifier"),
		{Name: "stage", In: "path", Required: true, Schema: openapi.Enum("Pipeline stage", sessions.Pipeline()...)},
	},
	Responses: map[int]*openapi.Response{
		200: openapi.ResponseSchema("Archived agent output for the stage", &openapi.Schema{Type: "object"}),
		400: openapi.ResponseRef("BadRequest"),
		404: openapi.ResponseRef("NotFound"),
	},
}

func (h *outputsHandler) download(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")
	stage := sessions.Stage(r.PathValue("stage"))

	if !stage.Valid() {
		handlers.RespondError(
			w, h.logger,
			http.StatusBadRequest,
			fmt.Errorf("unknown stage: %s", stage),
		)
		return
	}

	if _, err := h.session.Read(r.Context(), sessionID); err != nil {
		handlers.RespondError(
			w, h.logger,
			sessions.MapHTTPStatus(err), err,
		)
		return
	}

	body, err := h.store.Download(r.Context(), workflow.OutputKey(sessionID, stage))
	if err != nil {
		handlers.RespondError(
			w, h.logger,
			storage.MapHTTPStatus(err), err,
		)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, body)
}
