// Package agent invokes remote stage agents over HTTP. Requests are signed
// per attempt, bounded by a per-attempt timeout, and retried with capped
// exponential backoff when the failure is transient.
package agent

import (
	"bytes"
	"context"
	"net/http"
	"time"
)

// Call describes one outbound agent request prior to signing.
type Call struct {
	Method        string
	Endpoint      string
	Body          []byte
	CorrelationID string
}

// Credentials are the material a Signer needs. Epoch is the signing instant;
// identical calls signed with identical credentials produce identical requests.
type Credentials struct {
	KeyID  string
	Secret string
	Token  string
	Epoch  time.Time
}

// SignedRequest is a transport-independent signed request.
type SignedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// HTTPRequest builds an *http.Request bound to ctx.
func (s *SignedRequest) HTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, s.Method, s.URL, bytes.NewReader(s.Body))
	if err != nil {
		return nil, err
	}
	req.Header = s.Header.Clone()
	return req, nil
}

// Payload is the body sent to every stage agent.
type Payload struct {
	DocumentID          string `json:"documentId"`
	SourceType          string `json:"sourceType"`
	CorrelationID       string `json:"correlationId"`
	PriorStageOutputRef string `json:"priorStageOutputRef,omitempty"`
}
