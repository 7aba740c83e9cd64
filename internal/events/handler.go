package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/handlers"
	"github.com/JaimeStill/matchflow/pkg/routes"
)

const writeTimeout = 10 * time.Second

// SessionReader reads session snapshots.
type SessionReader interface {
	Read(ctx context.Context, sessionID string) (*sessions.Session, error)
}

// Handler upgrades observers to a WebSocket event stream.
type Handler struct {
	broadcaster *Broadcaster
	store       SessionReader
	origins     []string
	logger      *slog.Logger
}

// NewHandler creates a Handler. origins lists the host patterns allowed to
// open cross-origin streams.
func NewHandler(b *Broadcaster, store SessionReader, origins []string, logger *slog.Logger) *Handler {
	return &Handler{
		broadcaster: b,
		store:       store,
		origins:     origins,
		logger:      logger.With("handler", "events"),
	}
}

// Routes returns the push endpoint.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/workflow",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "/{sessionId}/events", Handler: h.Stream, OpenAPI: streamOp},
		},
	}
}

// Stream sends the current snapshot, then every event for the session until
// the result is available or the observer disconnects.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	sub := h.broadcaster.Subscribe(sessionID)
	defer sub.Close()

	snapshot, err := h.store.Read(r.Context(), sessionID)
	if err != nil {
		handlers.RespondError(w, h.logger, sessions.MapHTTPStatus(err), err)
		return
	}

	// The server read and write timeouts would otherwise cut long streams.
	rc := http.NewResponseController(w)
	rc.SetReadDeadline(time.Time{})
	rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	logger := h.logger.With("session_id", sessionID, "correlation_id", snapshot.CorrelationID)
	logger.Info("observer connected")

	if err := h.write(ctx, conn, NewEnvelope(sessionID, Snapshot(snapshot), time.Now())); err != nil {
		return
	}

	if snapshot.OverallStatus.Terminal() {
		h.write(ctx, conn, NewEnvelope(sessionID, Result(snapshot), time.Now()))
		conn.Close(websocket.StatusNormalClosure, "result available")
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("observer disconnected")
			return
		case env, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			if err := h.write(ctx, conn, env); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Warn("event write failed", "type", env.Type, "error", err)
				}
				return
			}
			if env.Type == TypeResultAvailable {
				conn.Close(websocket.StatusNormalClosure, "result available")
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, env)
}
