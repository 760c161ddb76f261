package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
)

// ConnectionConfig is the arbitrary structured document (API keys, OAuth
// client credentials, refresh token, debug flags) that a remote server needs
// to serve one call. It is serialized to JSON and embedded base64-encoded in
// the connection URL, so every session is a self-contained request carrying
// its own auth material.
type ConnectionConfig map[string]any

// SessionManager opens single-use transport sessions to integration
// endpoints under a gateway origin. Sessions are never pooled or reused:
// remote servers are addressed per call with per-call credentials embedded
// in the URL, so each invocation attempt opens its own session.
//
// SessionManager is safe for concurrent use.
type SessionManager struct {
	baseURL string
	apiKey  string
	dialer  Dialer
}

// NewSessionManager creates a [SessionManager] addressing integrations under
// baseURL (e.g. "https://server.smithery.ai") and authenticating with apiKey.
func NewSessionManager(baseURL, apiKey string, dialer Dialer) *SessionManager {
	return &SessionManager{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		dialer:  dialer,
	}
}

// Configured reports whether the manager holds the gateway API key required
// to address remote servers.
func (m *SessionManager) Configured() bool {
	return m.apiKey != ""
}

// EndpointURL builds the connection target for an integration path:
// <base>/<path>/mcp?config=<base64-json>&api_key=<key>.
func (m *SessionManager) EndpointURL(path string, cfg ConnectionConfig) (string, error) {
	if cfg == nil {
		cfg = ConnectionConfig{}
	}
	doc, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("broker: encode connection config: %w", err)
	}

	q := url.Values{}
	q.Set("config", base64.StdEncoding.EncodeToString(doc))
	q.Set("api_key", m.apiKey)

	return fmt.Sprintf("%s/%s/mcp?%s", m.baseURL, path, q.Encode()), nil
}

// Open dials a new session to the integration at path, embedding cfg into
// the connection URL. The returned session is owned exclusively by the
// invocation attempt that opened it and must be closed on every exit path.
func (m *SessionManager) Open(ctx context.Context, integrationID, path string, cfg ConnectionConfig) (*Session, error) {
	endpoint, err := m.EndpointURL(path, cfg)
	if err != nil {
		return nil, err
	}

	conn, err := m.dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("broker: open session to %s: %w", integrationID, err)
	}
	return &Session{conn: conn, integrationID: integrationID}, nil
}

// Session is a single-use handle on one open transport to one remote server.
type Session struct {
	conn          Conn
	integrationID string
	closed        atomic.Bool
}

// CallTool invokes the named remote tool over this session.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*Reply, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("broker: session to %s already closed", s.integrationID)
	}
	return s.conn.CallTool(ctx, name, args)
}

// Close releases the session. It is idempotent and never returns an error:
// close failures are logged and swallowed so that closing on a failure path
// can never mask the original error.
func (s *Session) Close() {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return
	}
	if err := s.conn.Close(); err != nil {
		slog.Warn("session close failed",
			"integration", s.integrationID, "error", err)
	}
}
