package agent

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Header names set on signed requests.
const (
	HeaderDate          = "X-Mf-Date"
	HeaderContentSHA256 = "X-Mf-Content-Sha256"
	HeaderCorrelationID = "X-Correlation-ID"

	dateFormat    = "20060102T150405Z"
	hmacAlgorithm = "MF-HMAC-SHA256"
)

// Signer attaches authentication material to a Call.
type Signer interface {
	Sign(call Call, creds Credentials) (*SignedRequest, error)
}

// Signing modes accepted by NewSigner.
const (
	SigningHMAC   = "hmac"
	SigningBearer = "bearer"
	SigningNone   = "none"
)

// NewSigner returns the Signer for mode.
func NewSigner(mode string) (Signer, error) {
	switch mode {
	case SigningHMAC:
		return HMACSigner{}, nil
	case SigningBearer:
		return BearerSigner{}, nil
	case SigningNone:
		return NoneSigner{}, nil
	default:
		return nil, fmt.Errorf("unknown signing mode: %s", mode)
	}
}

// HMACSigner signs a canonical request string with HMAC-SHA256.
type HMACSigner struct{}

func (HMACSigner) Sign(call Call, creds Credentials) (*SignedRequest, error) {
	if creds.KeyID == "" || creds.Secret == "" {
		return nil, fmt.Errorf("%w: key id and secret required", ErrSigning)
	}
	if creds.Epoch.IsZero() {
		return nil, fmt.Errorf("%w: epoch required", ErrSigning)
	}

	req, u, err := baseRequest(call)
	if err != nil {
		return nil, err
	}

	date := creds.Epoch.UTC().Format(dateFormat)
	bodyHash := sha256.Sum256(call.Body)
	contentHash := hex.EncodeToString(bodyHash[:])

	canonical := strings.Join([]string{
		req.Method,
		u.Host,
		canonicalPath(u),
		date,
		call.CorrelationID,
		contentHash,
	}, "\n")

	mac := hmac.New(sha256.New, []byte(creds.Secret))
	mac.Write([]byte(canonical))
	signature := hex.EncodeToString(mac.Sum(nil))

	req.Header.Set(HeaderDate, date)
	req.Header.Set(HeaderContentSHA256, contentHash)
	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s, SignedHeaders=host;%s;%s, Signature=%s",
		hmacAlgorithm,
		creds.KeyID,
		strings.ToLower(HeaderDate),
		strings.ToLower(HeaderCorrelationID),
		signature,
	))

	return req, nil
}

// BearerSigner sets an OAuth bearer token from Credentials.Token.
type BearerSigner struct{}

func (BearerSigner) Sign(call Call, creds Credentials) (*SignedRequest, error) {
	if creds.Token == "" {
		return nil, fmt.Errorf("%w: token required", ErrSigning)
	}

	req, _, err := baseRequest(call)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+creds.Token)
	return req, nil
}

// NoneSigner builds the request without authentication, for agents behind a
// trusted network boundary.
type NoneSigner struct{}

func (NoneSigner) Sign(call Call, _ Credentials) (*SignedRequest, error) {
	req, _, err := baseRequest(call)
	return req, err
}

func baseRequest(call Call) (*SignedRequest, *url.URL, error) {
	u, err := url.Parse(call.Endpoint)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, nil, fmt.Errorf("%w: parse endpoint: %v", ErrSigning, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: endpoint must be absolute", ErrSigning)
	}

	method := call.Method
	if method == "" {
		method = http.MethodPost
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	if call.CorrelationID != "" {
		header.Set(HeaderCorrelationID, call.CorrelationID)
	}

	return &SignedRequest{
		Method: method,
		URL:    u.String(),
		Header: header,
		Body:   call.Body,
	}, u, nil
}

func canonicalPath(u *url.URL) string {
	if p := u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}
