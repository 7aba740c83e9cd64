package agent_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JaimeStill/matchflow/pkg/agent"
)

var epoch = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticCreds() agent.StaticCredentials {
	return agent.StaticCredentials{
		KeyID:  "key-1",
		Secret: "secret",
		Now:    func() time.Time { return epoch },
	}
}

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func newClient(t *testing.T, rec *recorder, cfg agent.Config) *agent.Client {
	t.Helper()
	return agent.New(agent.HMACSigner{}, staticCreds(), cfg, discardLogger(), agent.WithSleep(rec.sleep))
}

func payload() agent.Payload {
	return agent.Payload{DocumentID: "DOC-1", SourceType: "BANK", CorrelationID: "corr-1"}
}

func TestInvokeSuccess(t *testing.T) {
	var got agent.Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "corr-1", r.Header.Get(agent.HeaderCorrelationID))
		assert.Contains(t, r.Header.Get("Authorization"), "MF-HMAC-SHA256 Credential=key-1")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"data":{"classification":"AUTO_MATCH"}}`))
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{})

	res, err := c.Invoke(context.Background(), agent.Request{
		Endpoint:      srv.URL + "/match",
		Payload:       payload(),
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.JSONEq(t, `{"classification":"AUTO_MATCH"}`, string(res.Data))
	assert.Equal(t, "corr-1", got.CorrelationID)
	assert.Empty(t, rec.delays)
}

func TestInvokeRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{})

	res, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestInvokeExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{})

	_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})
	require.Error(t, err)

	var aerr *agent.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, agent.KindHTTP, aerr.Kind)
	assert.Equal(t, 3, aerr.Attempts)
	assert.Equal(t, http.StatusInternalServerError, aerr.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, rec.delays)
}

func TestInvokeClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{})

	_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})

	var aerr *agent.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, agent.KindHTTP, aerr.Kind)
	assert.Equal(t, 1, aerr.Attempts)
	assert.False(t, aerr.Retryable())
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, rec.delays)
}

func TestInvokeSigningFailure(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	rec := &recorder{}
	c := agent.New(agent.HMACSigner{}, agent.StaticCredentials{KeyID: "key-1"}, agent.Config{}, discardLogger(), agent.WithSleep(rec.sleep))

	_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})

	var aerr *agent.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, agent.KindSigning, aerr.Kind)
	assert.ErrorIs(t, err, agent.ErrSigning)
	assert.Equal(t, 1, aerr.Attempts)
	assert.Equal(t, int32(0), hits.Load())
}

func TestInvokeMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway</html>`))
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{})

	_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})

	var aerr *agent.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, agent.KindMalformed, aerr.Kind)
	assert.Equal(t, 1, aerr.Attempts)
}

func TestInvokeAttemptTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	rec := &recorder{}
	c := newClient(t, rec, agent.Config{Timeout: 50 * time.Millisecond, MaxAttempts: 2})

	_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})

	var aerr *agent.Error
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, agent.KindTimeout, aerr.Kind)
	assert.Equal(t, 2, aerr.Attempts)
	assert.Len(t, rec.delays, 1)
}

func TestInvokeAgentReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"document not found"}`))
	}))
	defer srv.Close()

	c := newClient(t, &recorder{}, agent.Config{})

	res, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "document not found", res.Error)
}

func TestInvokeLogsEndpointHostOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := agent.New(agent.HMACSigner{}, staticCreds(), agent.Config{MaxAttempts: 2}, logger, agent.WithSleep((&recorder{}).sleep))

	_, err := c.Invoke(context.Background(), agent.Request{
		Endpoint: srv.URL + "/match-agent?code=s3cr3t",
		Payload:  payload(),
	})
	require.NoError(t, err)

	_, err = c.Invoke(context.Background(), agent.Request{
		Endpoint: downURL + "/extract-agent/v1?sig=s3cr3t",
		Payload:  payload(),
	})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "s3cr3t")
	assert.NotContains(t, err.Error(), "extract-agent")

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "agent attempt"))
	assert.Contains(t, out, "endpoint="+srv.URL+"/...")
	assert.Contains(t, out, "endpoint="+downURL+"/...")
	assert.NotContains(t, out, "s3cr3t")
	assert.NotContains(t, out, "match-agent")
	assert.NotContains(t, out, "extract-agent")
}

func TestInvokeRequestOverrides(t *testing.T) {
	t.Run("max attempts", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		rec := &recorder{}
		c := newClient(t, rec, agent.Config{MaxAttempts: 3})

		_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload(), MaxAttempts: 5})

		var aerr *agent.Error
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, 5, aerr.Attempts)
		assert.Equal(t, int32(5), hits.Load())
		assert.Len(t, rec.delays, 4)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := newClient(t, &recorder{}, agent.Config{Timeout: 10 * time.Second, MaxAttempts: 1})

		begun := time.Now()
		_, err := c.Invoke(context.Background(), agent.Request{
			Endpoint: srv.URL,
			Payload:  payload(),
			Timeout:  50 * time.Millisecond,
		})

		var aerr *agent.Error
		require.True(t, errors.As(err, &aerr))
		assert.Equal(t, agent.KindTimeout, aerr.Kind)
		assert.Equal(t, 1, aerr.Attempts)
		assert.Less(t, time.Since(begun), time.Second)
	})

	t.Run("zero uses config", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		c := newClient(t, &recorder{}, agent.Config{MaxAttempts: 2})

		_, err := c.Invoke(context.Background(), agent.Request{Endpoint: srv.URL, Payload: payload()})
		require.Error(t, err)
		assert.Equal(t, int32(2), hits.Load())
	})
}

func TestBackoff(t *testing.T) {
	c := agent.New(agent.NoneSigner{}, staticCreds(), agent.Config{}, discardLogger())

	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second},
		{62, 8 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Backoff(tt.n), "retry %d", tt.n)
	}
}

func TestBackoffJitterStaysBelowDelay(t *testing.T) {
	c := agent.New(agent.NoneSigner{}, staticCreds(), agent.Config{Jitter: 0.5}, discardLogger())

	for range 50 {
		d := c.Backoff(1)
		assert.LessOrEqual(t, d, 2*time.Second)
		assert.Greater(t, d, time.Second)
	}
}
