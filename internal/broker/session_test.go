package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
)

// countingConn counts Close calls and optionally fails them.
type countingConn struct {
	mu         sync.Mutex
	closeCount int
	closeErr   error
}

func (c *countingConn) CallTool(context.Context, string, map[string]any) (*Reply, error) {
	return &Reply{Content: []ContentItem{{Type: "text", Text: "ok"}}}, nil
}

func (c *countingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCount++
	return c.closeErr
}

func (c *countingConn) closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCount
}

// staticDialer hands out a fixed conn and records dialed endpoints.
type staticDialer struct {
	mu        sync.Mutex
	conn      Conn
	err       error
	endpoints []string
}

func (d *staticDialer) Dial(_ context.Context, endpoint string) (Conn, error) {
	d.mu.Lock()
	d.endpoints = append(d.endpoints, endpoint)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

// TestEndpointURL verifies the connection target encodes the configuration
// document as base64 JSON alongside the API key.
func TestEndpointURL(t *testing.T) {
	t.Parallel()
	m := NewSessionManager("https://gateway.example.com/", "gw-key", &staticDialer{})

	cfg := ConnectionConfig{
		"refreshToken": "tok-123",
		"clientId":     "oauth-id",
		"debug":        true,
	}
	endpoint, err := m.EndpointURL("@shinzolabs/gmail-mcp", cfg)
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		t.Fatalf("parse endpoint: %v", err)
	}
	if u.Scheme != "https" || u.Host != "gateway.example.com" {
		t.Errorf("origin = %s://%s", u.Scheme, u.Host)
	}
	if !strings.HasSuffix(u.Path, "/mcp") {
		t.Errorf("path %q does not end in /mcp", u.Path)
	}
	if !strings.Contains(u.Path, "@shinzolabs/gmail-mcp") {
		t.Errorf("path %q missing integration segment", u.Path)
	}

	q := u.Query()
	if got := q.Get("api_key"); got != "gw-key" {
		t.Errorf("api_key = %q, want %q", got, "gw-key")
	}

	decoded, err := base64.StdEncoding.DecodeString(q.Get("config"))
	if err != nil {
		t.Fatalf("config param is not base64: %v", err)
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(decoded, &roundTripped); err != nil {
		t.Fatalf("config param is not JSON: %v", err)
	}
	if roundTripped["refreshToken"] != "tok-123" || roundTripped["clientId"] != "oauth-id" || roundTripped["debug"] != true {
		t.Errorf("config round trip = %v", roundTripped)
	}
}

// TestEndpointURLNilConfig verifies a nil config encodes as an empty object.
func TestEndpointURLNilConfig(t *testing.T) {
	t.Parallel()
	m := NewSessionManager("https://gateway.example.com", "k", &staticDialer{})

	endpoint, err := m.EndpointURL("exa", nil)
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}
	u, _ := url.Parse(endpoint)
	decoded, err := base64.StdEncoding.DecodeString(u.Query().Get("config"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != "{}" {
		t.Errorf("config = %q, want {}", decoded)
	}
}

// TestSessionCloseIdempotent verifies repeated closes release the underlying
// connection exactly once.
func TestSessionCloseIdempotent(t *testing.T) {
	t.Parallel()
	conn := &countingConn{}
	m := NewSessionManager("https://gateway.example.com", "k", &staticDialer{conn: conn})

	sess, err := m.Open(context.Background(), "exa", "exa", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sess.Close()
	sess.Close()
	sess.Close()

	if got := conn.closes(); got != 1 {
		t.Errorf("underlying Close called %d times, want 1", got)
	}
}

// TestSessionCloseSwallowsError verifies a failing close neither panics nor
// surfaces an error.
func TestSessionCloseSwallowsError(t *testing.T) {
	t.Parallel()
	conn := &countingConn{closeErr: errors.New("already gone")}
	m := NewSessionManager("https://gateway.example.com", "k", &staticDialer{conn: conn})

	sess, err := m.Open(context.Background(), "exa", "exa", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess.Close()

	if got := conn.closes(); got != 1 {
		t.Errorf("underlying Close called %d times, want 1", got)
	}
}

// TestSessionCallAfterClose verifies a closed session rejects further calls.
func TestSessionCallAfterClose(t *testing.T) {
	t.Parallel()
	conn := &countingConn{}
	m := NewSessionManager("https://gateway.example.com", "k", &staticDialer{conn: conn})

	sess, err := m.Open(context.Background(), "exa", "exa", nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess.Close()

	if _, err := sess.CallTool(context.Background(), "web_search_exa", nil); err == nil {
		t.Error("expected error calling a closed session")
	}
}

// TestNilSessionClose verifies closing a nil session (failed open path) is
// safe.
func TestNilSessionClose(t *testing.T) {
	t.Parallel()
	var sess *Session
	sess.Close()
}
