// Command watch follows a workflow session from the command line, printing
// each event as it arrives and falling back to status polling when the
// event stream is unreachable.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/JaimeStill/matchflow/pkg/middleware"
	"github.com/JaimeStill/matchflow/pkg/watch"
)

const (
	envBaseURL     = "MATCHFLOW_WATCH_URL"
	defaultBaseURL = "http://localhost:8080/api"
)

func main() {
	var (
		baseURL       = flag.String("url", "", "API base URL")
		session       = flag.String("session", "", "Session id to follow")
		correlationID = flag.String("correlation-id", "", "Correlation id sent with every request")
		pollInterval  = flag.Duration("poll", 30*time.Second, "Status polling interval while the stream is down")
		threshold     = flag.Int("threshold", 3, "Consecutive connect failures before polling starts")
		verbose       = flag.Bool("v", false, "Log connection state changes")
	)
	flag.Parse()

	if *session == "" {
		fmt.Println("usage: watch -session <id> [-url <api-base>] [-poll 30s] [-threshold 3] [-v]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if *baseURL == "" {
		*baseURL = os.Getenv(envBaseURL)
	}
	if *baseURL == "" {
		*baseURL = defaultBaseURL
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	header := http.Header{}
	if *correlationID != "" {
		header.Set(middleware.CorrelationHeader, *correlationID)
	}

	cfg := watch.DefaultConfig()
	cfg.PollInterval = *pollInterval
	cfg.FailureThreshold = *threshold

	out := &printer{enc: json.NewEncoder(os.Stdout)}
	observer := watch.New(
		*session,
		watch.NewWebSocketDialer(*baseURL, header),
		watch.NewHTTPPoller(*baseURL, &http.Client{Timeout: 10 * time.Second}, header),
		cfg,
		watch.Handlers{
			OnMessage: out.print,
			OnSnapshot: func(data json.RawMessage) {
				out.print(watch.Message{
					Type:      "STATUS_POLL",
					SessionID: *session,
					Timestamp: time.Now().UTC(),
					Data:      data,
				})
			},
			OnState: func(s watch.State) {
				logger.Info("connection state", "state", s)
			},
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := observer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("watch failed: %v", err)
	}
}

// printer serializes output from the stream and polling goroutines.
type printer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func (p *printer) print(m watch.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enc.Encode(m)
}
