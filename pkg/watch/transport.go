package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// WebSocketDialer opens push streams against the service API.
type WebSocketDialer struct {
	baseURL string
	header  http.Header
}

// NewWebSocketDialer creates a dialer for an API base URL such as
// http://localhost:8080/api.
func NewWebSocketDialer(baseURL string, header http.Header) *WebSocketDialer {
	return &WebSocketDialer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		header:  header,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, sessionID string) (Stream, error) {
	target, err := wsURL(d.baseURL + "/workflow/" + url.PathEscape(sessionID) + "/events")
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: d.header})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next(ctx context.Context) (Message, error) {
	var msg Message
	err := wsjson.Read(ctx, s.conn, &msg)
	return msg, err
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

func wsURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	return u.String(), nil
}

// HTTPPoller pulls session snapshots from the status endpoint.
type HTTPPoller struct {
	baseURL string
	client  *http.Client
	header  http.Header
}

// NewHTTPPoller creates a poller for an API base URL.
func NewHTTPPoller(baseURL string, client *http.Client, header http.Header) *HTTPPoller {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPoller{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		header:  header,
	}
}

func (p *HTTPPoller) Poll(ctx context.Context, sessionID string) (json.RawMessage, error) {
	target := p.baseURL + "/workflow/" + url.PathEscape(sessionID) + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range p.header {
		req.Header[k] = v
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.RawMessage(body), nil
}
