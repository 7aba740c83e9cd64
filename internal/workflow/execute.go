package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/matchflow/internal/events"
	"github.com/JaimeStill/matchflow/internal/sessions"
	"github.com/JaimeStill/matchflow/pkg/agent"
	"github.com/JaimeStill/matchflow/pkg/formatting"
)

// execution is the working state of one run over a session. The session
// copy mirrors what has been written to the store.
type execution struct {
	session  *sessions.Session
	logger   *slog.Logger
	prior    string
	executed int
	started  time.Time
}

// execute runs plan in order against s. It finalizes the session when the
// plan completes or a stage fails, and returns the latest session state.
// When automatic matching is disabled, a non-manual run stops before match
// and leaves the session processing.
func (o *orchestrator) execute(ctx context.Context, s *sessions.Session, plan []sessions.Stage, manual bool) (*sessions.Session, error) {
	ex := &execution{
		session: s,
		logger:  o.logger.With("session_id", s.SessionID, "correlation_id", s.CorrelationID),
		started: o.rt.now(),
	}

	ex.logger.Info("workflow started",
		"document_id", s.DocumentID,
		"source_type", s.SourceType,
		"stages", len(plan),
		"manual", manual,
	)

	if manual {
		ex.prior = s.Stages[sessions.StageExtract].OutputRef
	}

	if s.OverallStatus != sessions.StatusProcessing {
		if err := o.rt.Store.SetStatus(ctx, s.SessionID, sessions.StatusProcessing); err != nil {
			return o.fail(ctx, ex, fmt.Errorf("%w: set status: %w", ErrStoreWrite, err))
		}
		s.OverallStatus = sessions.StatusProcessing
		o.snapshot(ctx, ex)
	}

	for _, stage := range plan {
		if stage == sessions.StageMatch && !manual && !o.rt.Config.AutoMatch {
			ex.logger.Info("workflow awaiting manual matching",
				"stages_executed", ex.executed,
				"elapsed", o.rt.now().Sub(ex.started),
			)
			return s.Clone(), nil
		}

		if stage == sessions.StageExceptionHandle && !RequiresEscalation(classificationOf(s)) {
			if err := o.skip(ctx, ex, stage); err != nil {
				return o.fail(ctx, ex, err)
			}
			continue
		}

		if err := o.runStage(ctx, ex, stage); err != nil {
			return o.fail(ctx, ex, err)
		}
	}

	final, err := o.Finalize(ctx, s.SessionID)
	if err != nil {
		return o.fail(ctx, ex, err)
	}

	o.finished(ex, final)
	return final, nil
}

func (o *orchestrator) runStage(ctx context.Context, ex *execution, stage sessions.Stage) error {
	s := ex.session
	begun := o.rt.now()

	status := sessions.StageStatus{
		Status:    sessions.StateInProgress,
		Activity:  activity(stage),
		StartedAt: &begun,
	}
	if err := o.writeStage(ctx, ex, stage, status); err != nil {
		return err
	}

	ex.executed++
	ex.logger.Info("stage started", "stage", stage)

	endpoint := o.rt.Config.Endpoints[stage]
	if endpoint == "" {
		return o.stageError(ctx, ex, stage, status, &sessions.ErrorDetail{
			Kind:    "config",
			Message: "no agent endpoint configured",
		})
	}

	res, err := o.rt.Agents.Invoke(ctx, agent.Request{
		Endpoint: endpoint,
		Payload: agent.Payload{
			DocumentID:          s.DocumentID,
			SourceType:          string(s.SourceType),
			CorrelationID:       s.CorrelationID,
			PriorStageOutputRef: ex.prior,
		},
		CorrelationID: s.CorrelationID,
	})
	if err != nil {
		return o.stageError(ctx, ex, stage, status, invokeDetail(err))
	}

	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "agent reported failure"
		}
		return o.stageError(ctx, ex, stage, status, &sessions.ErrorDetail{
			Kind:       "agent",
			Message:    msg,
			Attempts:   res.Attempts,
			StatusCode: res.StatusCode,
		})
	}

	out, err := parseOutput(res.Data)
	if err != nil {
		return o.stageError(ctx, ex, stage, status, &sessions.ErrorDetail{
			Kind:       string(agent.KindMalformed),
			Message:    err.Error(),
			Attempts:   res.Attempts,
			StatusCode: res.StatusCode,
		})
	}

	ref, err := o.archive(ctx, ex, stage, res.Data)
	if err != nil {
		return o.stageError(ctx, ex, stage, status, &sessions.ErrorDetail{
			Kind:    "archive",
			Message: err.Error(),
		})
	}

	if err := o.record(ctx, ex, stage, out); err != nil {
		return err
	}

	done := o.rt.now()
	status.Status = sessions.StateSuccess
	status.Activity = "Completed"
	status.CompletedAt = &done
	status.ElapsedMs = done.Sub(begun).Milliseconds()
	status.SubSteps = sessions.TrimDepth(out.SubSteps, sessions.MaxSubStepDepth)
	status.OutputRef = ref

	if err := o.writeStage(ctx, ex, stage, status); err != nil {
		return err
	}
	ex.prior = ref

	attrs := []any{"stage", stage, "elapsed", done.Sub(begun), "attempts", res.Attempts}
	if out.Classification != "" {
		attrs = append(attrs, "classification", out.Classification)
	}
	if out.Confidence != nil {
		attrs = append(attrs, "confidence", *out.Confidence)
	}
	ex.logger.Info("stage completed", attrs...)
	return nil
}

// record persists the branching fields of a stage output.
func (o *orchestrator) record(ctx context.Context, ex *execution, stage sessions.Stage, out stageOutput) error {
	s := ex.session

	if out.TokenUsage != nil {
		if err := o.rt.Store.AddTokenUsage(ctx, s.SessionID, *out.TokenUsage); err != nil {
			return fmt.Errorf("%w: token usage: %w", ErrStoreWrite, err)
		}
		var total sessions.TokenUsage
		if s.TokenUsage != nil {
			total = *s.TokenUsage
		}
		total = total.Add(*out.TokenUsage)
		s.TokenUsage = &total
	}

	if stage == sessions.StageMatch {
		if out.Classification != "" {
			if err := o.rt.Store.SetClassification(ctx, s.SessionID, out.Classification); err != nil {
				return fmt.Errorf("%w: classification: %w", ErrStoreWrite, err)
			}
			c := out.Classification
			s.Classification = &c
		}

		if RequiresEscalation(out.Classification) {
			msg := "match returned no classification"
			if out.Classification != "" {
				msg = fmt.Sprintf("classification %s requires exception handling", out.Classification)
			}
			if err := o.raise(ctx, ex, stage, sessions.SeverityWarning, msg, true); err != nil {
				return err
			}
		}
	}

	for _, e := range out.Exceptions {
		if err := o.raise(ctx, ex, stage, normalizeSeverity(e.Severity), e.Message, e.Recoverable); err != nil {
			return err
		}
	}
	return nil
}

func (o *orchestrator) raise(ctx context.Context, ex *execution, stage sessions.Stage, severity sessions.Severity, msg string, recoverable bool) error {
	e := sessions.Exception{
		ID:          uuid.NewString(),
		SessionID:   ex.session.SessionID,
		Severity:    severity,
		Message:     msg,
		SourceStage: stage,
		Recoverable: recoverable,
		Timestamp:   o.rt.now(),
	}

	if err := o.rt.Store.AppendException(ctx, e); err != nil {
		return fmt.Errorf("%w: exception: %w", ErrStoreWrite, err)
	}

	ex.logger.Info("exception raised", "stage", stage, "severity", severity, "message", msg)
	o.rt.publish(ctx, e.SessionID, events.ExceptionRaised{Exception: e})
	return nil
}

func (o *orchestrator) skip(ctx context.Context, ex *execution, stage sessions.Stage) error {
	now := o.rt.now()
	status := sessions.StageStatus{
		Status:      sessions.StateSuccess,
		Activity:    "Not required",
		StartedAt:   &now,
		CompletedAt: &now,
		Skipped:     true,
	}
	if err := o.writeStage(ctx, ex, stage, status); err != nil {
		return err
	}
	ex.logger.Info("stage skipped", "stage", stage)
	return nil
}

func (o *orchestrator) stageError(ctx context.Context, ex *execution, stage sessions.Stage, status sessions.StageStatus, detail *sessions.ErrorDetail) error {
	done := o.rt.now()
	status.Status = sessions.StateError
	status.Activity = "Failed"
	status.CompletedAt = &done
	if status.StartedAt != nil {
		status.ElapsedMs = done.Sub(*status.StartedAt).Milliseconds()
	}
	status.ErrorDetail = detail

	if err := o.writeStage(ctx, ex, stage, status); err != nil {
		return err
	}

	ex.logger.Warn("stage failed",
		"stage", stage,
		"kind", detail.Kind,
		"attempts", detail.Attempts,
		"status", detail.StatusCode,
		"error", detail.Message,
	)
	return fmt.Errorf("%w: %s: %s", ErrStageFailed, stage, detail.Message)
}

// writeStage persists a stage status, then mirrors it locally and publishes it.
func (o *orchestrator) writeStage(ctx context.Context, ex *execution, stage sessions.Stage, status sessions.StageStatus) error {
	s := ex.session
	if err := o.rt.Store.UpdateStage(ctx, s.SessionID, stage, status); err != nil {
		return fmt.Errorf("%w: stage %s: %w", ErrStoreWrite, stage, err)
	}

	s.Stages[stage] = status
	s.UpdatedAt = o.rt.now()

	o.rt.publish(ctx, s.SessionID, events.StepUpdate{Stage: stage, Status: status})
	o.snapshot(ctx, ex)
	return nil
}

func (o *orchestrator) snapshot(ctx context.Context, ex *execution) {
	o.rt.publish(ctx, ex.session.SessionID, events.Snapshot(ex.session.Clone()))
}

// archive stores raw stage output and returns the reference handed to the
// next stage.
func (o *orchestrator) archive(ctx context.Context, ex *execution, stage sessions.Stage, data json.RawMessage) (string, error) {
	if o.rt.Archive == nil {
		return "inline:" + string(stage), nil
	}

	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("null")
	}

	key := OutputKey(ex.session.SessionID, stage)
	if err := o.rt.Archive.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("archive %s: %w", key, err)
	}

	ex.logger.Debug("stage output archived", "stage", stage, "key", key, "size", formatting.FormatBytes(int64(len(data))))
	return key, nil
}

// fail finalizes the session after a stage or store failure. Finalization
// ignores cancellation of ctx so a session never stays unfinished.
func (o *orchestrator) fail(ctx context.Context, ex *execution, cause error) (*sessions.Session, error) {
	if errors.Is(cause, ErrStoreWrite) {
		ex.logger.Error("workflow aborted", "error", cause)
	}

	final, err := o.Finalize(context.WithoutCancel(ctx), ex.session.SessionID)
	if err != nil {
		ex.logger.Error("finalize after failure", "error", err)
		return ex.session.Clone(), cause
	}

	o.finished(ex, final)
	return final, cause
}

func (o *orchestrator) finished(ex *execution, final *sessions.Session) {
	ex.logger.Info("workflow finished",
		"status", final.OverallStatus,
		"stages_executed", ex.executed,
		"elapsed", o.rt.now().Sub(ex.started),
		"classification", classificationOf(final),
	)
}

func invokeDetail(err error) *sessions.ErrorDetail {
	var aerr *agent.Error
	if errors.As(err, &aerr) {
		return &sessions.ErrorDetail{
			Kind:       string(aerr.Kind),
			Message:    err.Error(),
			Attempts:   aerr.Attempts,
			StatusCode: aerr.StatusCode,
		}
	}
	return &sessions.ErrorDetail{Kind: "internal", Message: err.Error()}
}

func normalizeSeverity(s sessions.Severity) sessions.Severity {
	switch s {
	case sessions.SeverityInfo, sessions.SeverityWarning, sessions.SeverityError:
		return s
	default:
		return sessions.SeverityWarning
	}
}

func classificationOf(s *sessions.Session) string {
	if s.Classification == nil {
		return ""
	}
	return *s.Classification
}
