package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/conciergehq/concierge/internal/broker"
	"github.com/conciergehq/concierge/internal/config"
	"github.com/conciergehq/concierge/internal/credential"
	"github.com/conciergehq/concierge/internal/integration"
)

// staticConn replies to every call with the same text.
type staticConn struct {
	text string
}

func (c *staticConn) CallTool(context.Context, string, map[string]any) (*broker.Reply, error) {
	return &broker.Reply{Content: []broker.ContentItem{{Type: "text", Text: c.text}}}, nil
}

func (c *staticConn) Close() error { return nil }

// staticDialer hands out staticConns.
type staticDialer struct {
	text string
}

func (d *staticDialer) Dial(context.Context, string) (broker.Conn, error) {
	return &staticConn{text: d.text}, nil
}

// testConfig returns a config with every integration's deployment-wide
// settings present so registerRoutes yields non-nil configs throughout.
func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Gateway.BaseURL = "https://gateway.test"
	cfg.Gateway.APIKey = "gw-key"
	cfg.Integrations.Search.APIKey = "exa-key"
	cfg.Integrations.Gmail = config.OAuthClient{ClientID: "id", ClientSecret: "secret"}
	cfg.Integrations.Calendar = config.OAuthClient{ClientID: "id", ClientSecret: "secret"}
	return cfg
}

func newMainTestExecutor(t *testing.T, dialer broker.Dialer, resolver *credential.Resolver) *broker.Executor {
	t.Helper()
	cfg := testConfig()
	e := broker.NewExecutor(broker.ExecutorConfig{
		Sessions:    broker.NewSessionManager(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, dialer),
		Credentials: resolver,
		Timeout:     time.Second,
	})
	registry := integration.NewRegistry("", integration.Builtin())
	if err := registerRoutes(e, registry, cfg); err != nil {
		t.Fatalf("registerRoutes: %v", err)
	}
	return e
}

// TestRegisterRoutesCachePolicy verifies read tools are cacheable except the
// connection status check, which must always reflect present state.
func TestRegisterRoutesCachePolicy(t *testing.T) {
	t.Parallel()
	e := newMainTestExecutor(t, &staticDialer{text: "ok"}, nil)

	cases := []struct {
		tool string
		want bool
	}{
		{"web_search_exa", true},
		{"list_events", true},
		{"search_emails", true},
		{"check_connection_status", false},
		{"send_email", false},
		{"create_event", false},
	}
	for _, tc := range cases {
		route, ok := e.Route(tc.tool)
		if !ok {
			t.Fatalf("route for %q not registered", tc.tool)
		}
		if route.Cacheable != tc.want {
			t.Errorf("%s: Cacheable = %v, want %v", tc.tool, route.Cacheable, tc.want)
		}
	}
}

// TestRegisterRoutesMailboxTransform verifies the mailbox search route
// carries the structured-filter rewrite and no other route does.
func TestRegisterRoutesMailboxTransform(t *testing.T) {
	t.Parallel()
	e := newMainTestExecutor(t, &staticDialer{text: "ok"}, nil)

	route, ok := e.Route("search_emails")
	if !ok {
		t.Fatal("search_emails route not registered")
	}
	if route.TransformArgs == nil {
		t.Error("search_emails route has no argument transform")
	} else {
		out := route.TransformArgs(map[string]any{"query": "invoice", "after": "2024-01-01"})
		if q, _ := out["q"].(string); q != "invoice after:2024-01-01" {
			t.Errorf("transform produced q = %q", q)
		}
	}

	other, ok := e.Route("web_search_exa")
	if !ok {
		t.Fatal("web_search_exa route not registered")
	}
	if other.TransformArgs != nil {
		t.Error("web_search_exa route unexpectedly has an argument transform")
	}
}

// postInvoke sends an invocation body through the handler and returns the
// recorded response.
func postInvoke(t *testing.T, e *broker.Executor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/invoke", strings.NewReader(body))
	rec := httptest.NewRecorder()
	invokeHandler(e)(rec, req)
	return rec
}

// TestInvokeHandlerSuccess verifies a valid invocation returns the remote's
// text as JSON.
func TestInvokeHandlerSuccess(t *testing.T) {
	t.Parallel()
	e := newMainTestExecutor(t, &staticDialer{text: "three results"}, nil)

	rec := postInvoke(t, e, `{"caller_id":"caller-1","tool":"web_search_exa","args":{"query":"go"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["text"] != "three results" {
		t.Errorf("text = %q, want remote reply", resp["text"])
	}
}

// TestInvokeHandlerRejectsBadRequests verifies malformed bodies and missing
// identifiers fail with 400 before any dispatch.
func TestInvokeHandlerRejectsBadRequests(t *testing.T) {
	t.Parallel()
	e := newMainTestExecutor(t, &staticDialer{text: "never"}, nil)

	for name, body := range map[string]string{
		"malformed json":    `{"caller_id":`,
		"missing caller_id": `{"tool":"web_search_exa"}`,
		"missing tool":      `{"caller_id":"caller-1"}`,
	} {
		if rec := postInvoke(t, e, body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

// TestInvokeHandlerUnknownTool verifies an unregistered tool maps to 404.
func TestInvokeHandlerUnknownTool(t *testing.T) {
	t.Parallel()
	e := newMainTestExecutor(t, &staticDialer{text: "never"}, nil)

	rec := postInvoke(t, e, `{"caller_id":"caller-1","tool":"nonexistent_tool"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// TestInvokeHandlerNotConnected verifies a caller without a stored credential
// for an OAuth integration maps to 403.
func TestInvokeHandlerNotConnected(t *testing.T) {
	t.Parallel()
	resolver := credential.NewResolver(credential.NewMemoryStore())
	e := newMainTestExecutor(t, &staticDialer{text: "never"}, resolver)

	rec := postInvoke(t, e, `{"caller_id":"caller-1","tool":"send_email","args":{"to":"a@b.com"}}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403 (body %s)", rec.Code, rec.Body)
	}
}
