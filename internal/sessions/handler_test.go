package sessions_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/pagination"
	"github.com/JaimeStill/matchflow/pkg/routes"
)

var pageConfig = pagination.Config{DefaultPageSize: 2, MaxPageSize: 10}

func TestHandlerStatus(t *testing.T) {
	store, clock := newMemoryStore(t)
	seed(t, store, clock, "s-1")

	mux := http.NewServeMux()
	routes.Register(mux, sessions.NewHandler(store, discard(), pageConfig).Routes())

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"found", "/workflow/s-1/status", http.StatusOK},
		{"unknown", "/workflow/nope/status", http.StatusNotFound},
		{"exceptions", "/workflow/s-1/exceptions", http.StatusOK},
		{"unknown exceptions", "/workflow/nope/exceptions", http.StatusNotFound},
		{"list", "/workflow?status=initializing", http.StatusOK},
		{"list bad status", "/workflow?status=done", http.StatusBadRequest},
		{"list bad source", "/workflow?sourceType=broker", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandlerStatusBody(t *testing.T) {
	store, clock := newMemoryStore(t)
	seed(t, store, clock, "s-1")

	mux := http.NewServeMux()
	routes.Register(mux, sessions.NewHandler(store, discard(), pageConfig).Routes())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/workflow/s-1/status", nil))

	var got sessions.Session
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != "s-1" {
		t.Errorf("sessionId: got %s, want s-1", got.SessionID)
	}
	if len(got.Stages) != 4 {
		t.Errorf("stages: got %d, want 4", len(got.Stages))
	}
}

func TestSweeperSweepOnce(t *testing.T) {
	store, clock := newMemoryStore(t)
	seed(t, store, clock, "s-1")

	sweeper := sessions.NewSweeper(store, 0, discard(), clock.now)

	n, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Errorf("removed: got %d, want 0", n)
	}

	clock.advance(sessions.DefaultRetention)

	n, err = sweeper.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Errorf("removed: got %d, want 1", n)
	}
}
