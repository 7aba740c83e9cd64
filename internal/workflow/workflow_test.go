package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/internal/workflow"
	"github.com/JaimeStill/matchflow/pkg/agent"
	"github.com/JaimeStill/matchflow/pkg/lifecycle"
	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/storage"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type agentCall struct {
	Stage         string
	Payload       agent.Payload
	HeaderCorrID  string
	Authorization string
}

type agentServer struct {
	mu        sync.Mutex
	responses map[string]string
	statuses  map[string]int
	calls     []agentCall
	srv       *httptest.Server
}

func newAgentServer(t *testing.T) *agentServer {
	t.Helper()
	a := &agentServer{
		responses: map[string]string{
			"adapt":           `{"success":true,"data":{"normalized":true,"tokenUsage":{"inputTokens":10,"outputTokens":5,"totalTokens":15}}}`,
			"extract":         `{"success":true,"data":{"fields":{"notional":"1000000"},"subSteps":[{"name":"parse","status":"success"}],"tokenUsage":{"inputTokens":20,"outputTokens":10,"totalTokens":30}}}`,
			"match":           `{"success":true,"data":{"classification":"AUTO_MATCH","confidence":0.98}}`,
			"exceptionHandle": `{"success":true,"data":{"resolution":"queued"}}`,
		},
		statuses: map[string]int{},
	}
	a.srv = httptest.NewServer(http.HandlerFunc(a.serve))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *agentServer) serve(w http.ResponseWriter, r *http.Request) {
	stage := strings.TrimPrefix(r.URL.Path, "/")

	var p agent.Payload
	json.NewDecoder(r.Body).Decode(&p)

	a.mu.Lock()
	a.calls = append(a.calls, agentCall{
		Stage:         stage,
		Payload:       p,
		HeaderCorrID:  r.Header.Get(agent.HeaderCorrelationID),
		Authorization: r.Header.Get("Authorization"),
	})
	status := a.statuses[stage]
	body := a.responses[stage]
	a.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
	}
	w.Write([]byte(body))
}

func (a *agentServer) set(stage, body string, status int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.responses[stage] = body
	a.statuses[stage] = status
}

func (a *agentServer) recorded() []agentCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agentCall(nil), a.calls...)
}

func (a *agentServer) stages() []string {
	var out []string
	for _, c := range a.recorded() {
		out = append(out, c.Stage)
	}
	return out
}

func (a *agentServer) endpoints() map[sessions.Stage]string {
	m := make(map[sessions.Stage]string)
	for _, s := range sessions.Pipeline() {
		m[s] = a.srv.URL + "/" + string(s)
	}
	return m
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (p *recordingPublisher) Publish(ctx context.Context, sessionID string, pl events.Payload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, events.NewEnvelope(sessionID, pl, time.Now()))
}

func (p *recordingPublisher) recorded() []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Envelope(nil), p.envs...)
}

type harness struct {
	agents  *agentServer
	store   sessions.System
	archive *storage.Memory
	events  *recordingPublisher
	lc      *lifecycle.Coordinator
	rt      *workflow.Runtime
	sys     workflow.System
}

func newHarness(t *testing.T, configure ...func(*workflow.Runtime)) *harness {
	t.Helper()

	h := &harness{
		agents:  newAgentServer(t),
		store:   sessions.NewMemory(discard(), nil),
		archive: storage.NewMemory(discard()),
		events:  &recordingPublisher{},
		lc:      lifecycle.New(),
	}

	client := agent.New(
		agent.HMACSigner{},
		agent.StaticCredentials{KeyID: "key-1", Secret: "secret"},
		agent.Config{Timeout: 5 * time.Second},
		discard(),
		agent.WithSleep(func(context.Context, time.Duration) error { return nil }),
	)

	h.rt = &workflow.Runtime{
		Store:       h.store,
		Idempotency: sessions.NewMemoryIdempotency(nil),
		Agents:      client,
		Events:      h.events,
		Archive:     h.archive,
		Lifecycle:   h.lc,
		Logger:      discard(),
		Config: workflow.Config{
			Endpoints: h.agents.endpoints(),
			AutoMatch: true,
		},
	}
	for _, fn := range configure {
		fn(h.rt)
	}

	h.sys = workflow.New(h.rt)
	return h
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	require.NoError(t, h.lc.Shutdown(5*time.Second))
}

func submission() workflow.Submission {
	return workflow.Submission{
		DocumentID:    "DOC-1",
		SourceType:    sessions.SourceBank,
		CorrelationID: "corr-1",
	}
}

func TestRunAutoMatch(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, sessions.StatusCompleted, s.OverallStatus)
	require.NotNil(t, s.Classification)
	assert.Equal(t, "AUTO_MATCH", *s.Classification)
	require.NotNil(t, s.CompletedAt)

	for _, stage := range sessions.Pipeline() {
		assert.Equal(t, sessions.StateSuccess, s.Stages[stage].Status, "stage %s", stage)
	}
	assert.True(t, s.Stages[sessions.StageExceptionHandle].Skipped)
	assert.Equal(t, []string{"adapt", "extract", "match"}, h.agents.stages())

	require.NotNil(t, s.TokenUsage)
	assert.Equal(t, int64(45), s.TokenUsage.TotalTokens)

	assert.Len(t, s.Stages[sessions.StageExtract].SubSteps, 1)

	exs, err := h.store.Exceptions(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Empty(t, exs)
}

func TestRunChainsOutputReferences(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	calls := h.agents.recorded()
	require.Len(t, calls, 3)

	adaptRef := "sessions/" + s.SessionID + "/adapt.json"
	extractRef := "sessions/" + s.SessionID + "/extract.json"

	assert.Empty(t, calls[0].Payload.PriorStageOutputRef)
	assert.Equal(t, adaptRef, calls[1].Payload.PriorStageOutputRef)
	assert.Equal(t, extractRef, calls[2].Payload.PriorStageOutputRef)
	assert.Equal(t, adaptRef, s.Stages[sessions.StageAdapt].OutputRef)

	ok, err := h.archive.Exists(context.Background(), extractRef)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRunInlineReferencesWithoutArchive(t *testing.T) {
	h := newHarness(t, func(rt *workflow.Runtime) { rt.Archive = nil })

	_, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	calls := h.agents.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "inline:adapt", calls[1].Payload.PriorStageOutputRef)
	assert.Equal(t, "inline:extract", calls[2].Payload.PriorStageOutputRef)
}

func TestCorrelationPropagation(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, "corr-1", s.CorrelationID)

	for _, c := range h.agents.recorded() {
		assert.Equal(t, "corr-1", c.Payload.CorrelationID, "payload for %s", c.Stage)
		assert.Equal(t, "corr-1", c.HeaderCorrID, "header for %s", c.Stage)
		assert.Equal(t, "DOC-1", c.Payload.DocumentID)
		assert.Equal(t, "BANK", c.Payload.SourceType)
		assert.Contains(t, c.Authorization, "MF-HMAC-SHA256")
	}

	stored, err := h.store.Read(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", stored.CorrelationID)
}

func TestRunReviewRequired(t *testing.T) {
	h := newHarness(t)
	h.agents.set("match", `{"success":true,"data":{"classification":"REVIEW_REQUIRED","confidence":0.41,"exceptions":[{"severity":"error","message":"notional mismatch","recoverable":true}]}}`, 0)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	assert.Equal(t, sessions.StatusCompleted, s.OverallStatus)
	assert.Equal(t, "REVIEW_REQUIRED", *s.Classification)
	assert.False(t, s.Stages[sessions.StageExceptionHandle].Skipped)
	assert.Equal(t, []string{"adapt", "extract", "match", "exceptionHandle"}, h.agents.stages())

	calls := h.agents.recorded()
	assert.Equal(t, "sessions/"+s.SessionID+"/match.json", calls[3].Payload.PriorStageOutputRef)

	exs, err := h.store.Exceptions(context.Background(), s.SessionID)
	require.NoError(t, err)
	require.Len(t, exs, 2)
	assert.Equal(t, sessions.SeverityWarning, exs[0].Severity)
	assert.Contains(t, exs[0].Message, "REVIEW_REQUIRED")
	assert.Equal(t, "notional mismatch", exs[1].Message)
	assert.Equal(t, sessions.SeverityError, exs[1].Severity)
	assert.Equal(t, sessions.StageMatch, exs[1].SourceStage)
	assert.False(t, exs[1].Timestamp.Before(exs[0].Timestamp))

	var raised int
	for _, env := range h.events.recorded() {
		if env.Type == events.TypeException {
			raised++
		}
	}
	assert.Equal(t, 2, raised)
}

func TestRunStageErrorFailsSession(t *testing.T) {
	h := newHarness(t)
	h.agents.set("extract", `{"error":"unavailable"}`, http.StatusServiceUnavailable)

	s, err := h.sys.Run(context.Background(), submission())
	require.ErrorIs(t, err, workflow.ErrStageFailed)
	require.NotNil(t, s)

	assert.Equal(t, sessions.StatusFailed, s.OverallStatus)
	require.NotNil(t, s.CompletedAt)
	assert.Equal(t, sessions.StateSuccess, s.Stages[sessions.StageAdapt].Status)
	assert.Equal(t, sessions.StatePending, s.Stages[sessions.StageMatch].Status)

	extract := s.Stages[sessions.StageExtract]
	assert.Equal(t, sessions.StateError, extract.Status)
	require.NotNil(t, extract.ErrorDetail)
	assert.Equal(t, "http", extract.ErrorDetail.Kind)
	assert.Equal(t, 3, extract.ErrorDetail.Attempts)
	assert.Equal(t, http.StatusServiceUnavailable, extract.ErrorDetail.StatusCode)

	assert.Equal(t, []string{"adapt", "extract", "extract", "extract"}, h.agents.stages())
}

func TestAgentFailureIsStageError(t *testing.T) {
	h := newHarness(t)
	h.agents.set("adapt", `{"success":false,"error":"document not found"}`, 0)

	s, err := h.sys.Run(context.Background(), submission())
	require.ErrorIs(t, err, workflow.ErrStageFailed)

	assert.Equal(t, sessions.StatusFailed, s.OverallStatus)
	adapt := s.Stages[sessions.StageAdapt]
	require.NotNil(t, adapt.ErrorDetail)
	assert.Equal(t, "agent", adapt.ErrorDetail.Kind)
	assert.Equal(t, "document not found", adapt.ErrorDetail.Message)
	assert.Equal(t, []string{"adapt"}, h.agents.stages())
}

func TestMissingEndpointIsStageError(t *testing.T) {
	h := newHarness(t, func(rt *workflow.Runtime) {
		delete(rt.Config.Endpoints, sessions.StageMatch)
	})

	s, err := h.sys.Run(context.Background(), submission())
	require.ErrorIs(t, err, workflow.ErrStageFailed)
	assert.Equal(t, "config", s.Stages[sessions.StageMatch].ErrorDetail.Kind)
}

func TestEventsAreMonotonic(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	envs := h.events.recorded()
	require.NotEmpty(t, envs)

	rank := map[sessions.StageState]int{
		sessions.StatePending:    0,
		sessions.StateInProgress: 1,
		sessions.StateSuccess:    2,
		sessions.StateError:      2,
	}
	last := map[sessions.Stage]int{}

	for _, env := range envs {
		assert.Equal(t, s.SessionID, env.SessionID)
		step, ok := env.Data.(events.StepUpdate)
		if !ok {
			continue
		}
		r := rank[step.Status.Status]
		assert.GreaterOrEqual(t, r, last[step.Stage], "stage %s regressed", step.Stage)
		last[step.Stage] = r
	}

	final := envs[len(envs)-1]
	assert.Equal(t, events.TypeResultAvailable, final.Type)
	result := final.Data.(events.ResultAvailable)
	assert.Equal(t, sessions.StatusCompleted, result.OverallStatus)
}

func TestFinalizeIdempotent(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Run(context.Background(), submission())
	require.NoError(t, err)

	again, err := h.sys.Finalize(context.Background(), s.SessionID)
	require.NoError(t, err)

	assert.Equal(t, s.OverallStatus, again.OverallStatus)
	assert.True(t, s.CompletedAt.Equal(*again.CompletedAt))
}

func TestSubmitRunsInBackground(t *testing.T) {
	h := newHarness(t)

	s, err := h.sys.Submit(context.Background(), submission())
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusInitializing, s.OverallStatus)
	for _, stage := range sessions.Pipeline() {
		assert.Equal(t, sessions.StatePending, s.Stages[stage].Status)
	}

	h.drain(t)

	final, err := h.store.Read(context.Background(), s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusCompleted, final.OverallStatus)
}

func TestSubmitAfterShutdown(t *testing.T) {
	h := newHarness(t)
	h.drain(t)

	_, err := h.sys.Submit(context.Background(), submission())
	assert.ErrorIs(t, err, workflow.ErrUnavailable)
}

func TestSubmitIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.sys.Submit(ctx, submission())
	require.NoError(t, err)

	second, err := h.sys.Submit(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	other := submission()
	other.CorrelationID = "corr-2"
	third, err := h.sys.Submit(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, third.SessionID)

	anon := submission()
	anon.CorrelationID = ""
	a, err := h.sys.Submit(ctx, anon)
	require.NoError(t, err)
	b, err := h.sys.Submit(ctx, anon)
	require.NoError(t, err)
	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.NotEmpty(t, a.CorrelationID)

	h.drain(t)
}

type brokenIdempotency struct{}

func (brokenIdempotency) Lookup(context.Context, string) (string, bool, error) {
	return "", false, errors.New("cache unreachable")
}

func (brokenIdempotency) Remember(context.Context, string, string, time.Time) error {
	return errors.New("cache unreachable")
}

func TestIdempotencyFailureDisablesCache(t *testing.T) {
	h := newHarness(t, func(rt *workflow.Runtime) { rt.Idempotency = brokenIdempotency{} })

	first, err := h.sys.Submit(context.Background(), submission())
	require.NoError(t, err)
	second, err := h.sys.Submit(context.Background(), submission())
	require.NoError(t, err)

	assert.NotEqual(t, first.SessionID, second.SessionID)
	h.drain(t)
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		sub  workflow.Submission
	}{
		{"missing document", workflow.Submission{SourceType: sessions.SourceBank}},
		{"unknown source", workflow.Submission{DocumentID: "DOC-1", SourceType: "BROKER"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.sys.Submit(context.Background(), tt.sub)
			assert.ErrorIs(t, err, workflow.ErrInvalidSubmission)
		})
	}
	assert.Empty(t, h.agents.recorded())
}

func TestSubmitBatch(t *testing.T) {
	h := newHarness(t)

	results, err := h.sys.SubmitBatch(context.Background(), workflow.BatchSubmission{
		Documents: []workflow.Submission{
			{DocumentID: "DOC-1", SourceType: sessions.SourceBank},
			{DocumentID: "DOC-2", SourceType: sessions.SourceCounterparty},
			{DocumentID: "", SourceType: sessions.SourceBank},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NotNil(t, results[0].Session)
	assert.NotNil(t, results[1].Session)
	assert.Nil(t, results[2].Session)
	assert.Contains(t, results[2].Error, "documentId")
	assert.Equal(t, 2, results[2].Index)

	h.drain(t)

	for _, r := range results[:2] {
		s, err := h.store.Read(context.Background(), r.Session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, sessions.StatusCompleted, s.OverallStatus)
	}
}

func TestSubmitBatchCorrelationPerDocument(t *testing.T) {
	h := newHarness(t)
	ctx := middleware.WithCorrelationID(context.Background(), "req-1")

	results, err := h.sys.SubmitBatch(ctx, workflow.BatchSubmission{
		Documents: []workflow.Submission{
			{DocumentID: "DOC-1", SourceType: sessions.SourceBank},
			{DocumentID: "DOC-2", SourceType: sessions.SourceBank},
			{DocumentID: "DOC-3", SourceType: sessions.SourceCounterparty, CorrelationID: "doc-3"},
		},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	h.drain(t)

	seen := make(map[string]bool)
	for _, r := range results {
		require.NotNil(t, r.Session)
		id := r.Session.CorrelationID
		assert.NotEmpty(t, id)
		assert.NotEqual(t, "req-1", id)
		assert.False(t, seen[id], "correlation id %s reused", id)
		seen[id] = true
	}
	assert.Equal(t, "doc-3", results[2].Session.CorrelationID)

	for _, c := range h.agents.recorded() {
		assert.NotEqual(t, "req-1", c.HeaderCorrID)
	}
}

func TestSubmitBatchLimits(t *testing.T) {
	h := newHarness(t, func(rt *workflow.Runtime) { rt.Config.MaxBatchSize = 1 })

	_, err := h.sys.SubmitBatch(context.Background(), workflow.BatchSubmission{})
	assert.ErrorIs(t, err, workflow.ErrInvalidSubmission)

	_, err = h.sys.SubmitBatch(context.Background(), workflow.BatchSubmission{
		Documents: []workflow.Submission{submission(), submission()},
	})
	assert.ErrorIs(t, err, workflow.ErrInvalidSubmission)
}

func TestInvokeMatching(t *testing.T) {
	h := newHarness(t, func(rt *workflow.Runtime) { rt.Config.AutoMatch = false })
	ctx := context.Background()

	s, err := h.sys.Run(ctx, submission())
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusProcessing, s.OverallStatus)
	assert.Equal(t, sessions.StateSuccess, s.Stages[sessions.StageExtract].Status)
	assert.Equal(t, sessions.StatePending, s.Stages[sessions.StageMatch].Status)
	assert.Equal(t, []string{"adapt", "extract"}, h.agents.stages())

	inv, err := h.sys.InvokeMatching(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "initiated", inv.Status)
	assert.NotEmpty(t, inv.InvocationID)

	h.drain(t)

	final, err := h.store.Read(ctx, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, sessions.StatusCompleted, final.OverallStatus)

	calls := h.agents.recorded()
	require.Len(t, calls, 3)
	assert.Equal(t, "sessions/"+s.SessionID+"/extract.json", calls[2].Payload.PriorStageOutputRef)

	_, err = h.sys.InvokeMatching(ctx, s.SessionID)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)

	_, err = h.sys.InvokeMatching(ctx, "missing")
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

// hookPublisher records events and calls onExtract when the extract stage
// reports success.
type hookPublisher struct {
	recordingPublisher
	onExtract func(sessionID string)
}

func (p *hookPublisher) Publish(ctx context.Context, sessionID string, pl events.Payload) {
	p.recordingPublisher.Publish(ctx, sessionID, pl)
	if u, ok := pl.(events.StepUpdate); ok &&
		u.Stage == sessions.StageExtract && u.Status.Status == sessions.StateSuccess {
		p.onExtract(sessionID)
	}
}

func TestInvokeMatchingDuringRun(t *testing.T) {
	tests := []struct {
		name      string
		autoMatch bool
		want      []string
		status    sessions.OverallStatus
	}{
		{"auto match", true, []string{"adapt", "extract", "match"}, sessions.StatusCompleted},
		{"manual match", false, []string{"adapt", "extract"}, sessions.StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var invokeErr error
			var sys workflow.System

			pub := &hookPublisher{}
			pub.onExtract = func(sessionID string) {
				_, invokeErr = sys.InvokeMatching(context.Background(), sessionID)
			}

			h := newHarness(t, func(rt *workflow.Runtime) {
				rt.Config.AutoMatch = tt.autoMatch
				rt.Events = pub
			})
			sys = h.sys

			s, err := h.sys.Run(context.Background(), submission())
			require.NoError(t, err)
			h.drain(t)

			assert.ErrorIs(t, invokeErr, workflow.ErrInvalidState)
			assert.Equal(t, tt.want, h.agents.stages())

			final, err := h.store.Read(context.Background(), s.SessionID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, final.OverallStatus)
			assert.NotEqual(t, sessions.StateError, final.Stages[sessions.StageMatch].Status)
		})
	}
}

func TestInvokeMatchingRequiresManualMode(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s, err := h.sys.Run(ctx, submission())
	require.NoError(t, err)
	require.Equal(t, sessions.StatusCompleted, s.OverallStatus)

	_, err = h.sys.InvokeMatching(ctx, s.SessionID)
	assert.ErrorIs(t, err, workflow.ErrInvalidState)
	assert.Equal(t, []string{"adapt", "extract", "match"}, h.agents.stages())
}

type failingStore struct {
	sessions.System
	failStage sessions.Stage
}

func (f *failingStore) UpdateStage(ctx context.Context, id string, stage sessions.Stage, status sessions.StageStatus) error {
	if stage == f.failStage {
		return errors.New("write timeout")
	}
	return f.System.UpdateStage(ctx, id, stage, status)
}

func TestStoreWriteFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.rt.Store = &failingStore{System: h.store, failStage: sessions.StageMatch}
	sys := workflow.New(h.rt)

	s, err := sys.Run(context.Background(), submission())
	require.ErrorIs(t, err, workflow.ErrStoreWrite)

	assert.Equal(t, sessions.StatusFailed, s.OverallStatus)
	assert.Equal(t, []string{"adapt", "extract"}, h.agents.stages())
}

func TestRequiresEscalation(t *testing.T) {
	assert.False(t, workflow.RequiresEscalation("AUTO_MATCH"))
	assert.False(t, workflow.RequiresEscalation("auto_match"))
	assert.True(t, workflow.RequiresEscalation("REVIEW_REQUIRED"))
	assert.True(t, workflow.RequiresEscalation(""))
}
