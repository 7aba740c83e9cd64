package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Observer follows one session through push with polling fallback.
type Observer struct {
	sessionID string
	dialer    Dialer
	poller    Poller
	cfg       Config
	handlers  Handlers
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	state     State
	stopPoll  context.CancelFunc
	pollDone  chan struct{}
	finished  bool
	cancelRun context.CancelFunc
}

// Option configures an Observer.
type Option func(*Observer)

// WithSleep replaces the reconnect backoff sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Observer) { o.sleep = fn }
}

// New creates an Observer for sessionID.
func New(sessionID string, d Dialer, p Poller, cfg Config, h Handlers, logger *slog.Logger, opts ...Option) *Observer {
	o := &Observer{
		sessionID: sessionID,
		dialer:    d,
		poller:    p,
		cfg:       cfg.withDefaults(),
		handlers:  h,
		logger:    logger.With("system", "watch", "session_id", sessionID),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current connection state.
func (o *Observer) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run follows the session until a result is available or ctx is cancelled.
// It returns nil once the session reaches a terminal status.
func (o *Observer) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.mu.Lock()
	o.cancelRun = cancel
	o.mu.Unlock()
	defer o.stopPolling()

	failures := 0
	for {
		if o.isFinished() {
			return nil
		}

		o.setState(StateConnecting)
		stream, err := o.dialer.Dial(runCtx, o.sessionID)
		if err != nil {
			if o.isFinished() {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++
			o.logger.Warn("push connect failed", "failures", failures, "error", err)

			if failures >= o.cfg.FailureThreshold {
				o.startPolling(runCtx)
				o.setState(StateFallback)
			} else {
				o.setState(StateDisconnected)
			}

			if err := o.sleep(runCtx, o.cfg.Backoff(failures)); err != nil {
				if o.isFinished() {
					return nil
				}
				return ctx.Err()
			}
			continue
		}

		failures = 0
		resync := o.stopPolling()
		o.setState(StateConnected)

		if resync {
			o.pullOnce(runCtx)
		}

		done := o.consume(runCtx, stream)
		stream.Close()

		if done {
			o.finish()
			return nil
		}
		if o.isFinished() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.setState(StateDisconnected)

		if err := o.sleep(runCtx, o.cfg.Backoff(1)); err != nil {
			if o.isFinished() {
				return nil
			}
			return ctx.Err()
		}
	}
}

func (o *Observer) consume(ctx context.Context, stream Stream) bool {
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				o.logger.Warn("push stream lost", "error", err)
			}
			return false
		}

		if o.handlers.OnMessage != nil {
			o.handlers.OnMessage(msg)
		}
		if msg.Type == TypeResultAvailable {
			return true
		}
	}
}

func (o *Observer) startPolling(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stopPoll != nil {
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.stopPoll = cancel
	o.pollDone = done

	o.logger.Info("polling fallback started", "interval", o.cfg.PollInterval)

	go func() {
		defer close(done)

		ticker := time.NewTicker(o.cfg.PollInterval)
		defer ticker.Stop()

		for {
			if o.pullOnce(pollCtx) {
				o.finish()
				return
			}
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopPolling cancels the polling goroutine, waits for it to exit, and
// reports whether polling was active.
func (o *Observer) stopPolling() bool {
	o.mu.Lock()
	cancel, done := o.stopPoll, o.pollDone
	o.stopPoll, o.pollDone = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	o.logger.Info("polling fallback stopped")
	return true
}

// pullOnce fetches one snapshot and reports whether it is terminal.
func (o *Observer) pullOnce(ctx context.Context) bool {
	snap, err := o.poller.Poll(ctx, o.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("status poll failed", "error", err)
		}
		return false
	}

	if o.handlers.OnSnapshot != nil {
		o.handlers.OnSnapshot(snap)
	}
	return terminalSnapshot(snap)
}

func (o *Observer) finish() {
	o.mu.Lock()
	o.finished = true
	cancel := o.cancelRun
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (o *Observer) isFinished() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finished
}

func (o *Observer) setState(s State) {
	o.mu.Lock()
	changed := o.state != s
	o.state = s
	o.mu.Unlock()

	if changed {
		o.logger.Debug("state changed", "state", s)
		if o.handlers.OnState != nil {
			o.handlers.OnState(s)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
