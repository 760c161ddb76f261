// Package broker routes model-issued tool calls to remote MCP integrations.
//
// For each invocation the executor resolves the caller's credentials, opens
// a single-use transport session with per-call configuration embedded in the
// connection URL, performs the remote call under timeout and retry policy,
// and returns the reply's text. Read-style tools can be served from a
// bounded in-process cache keyed per caller; mutating tools never are.
//
// Invocations run independently: there is no serialization across callers or
// integrations, and no session reuse. The only shared mutable state is the
// result cache, which is mutex-guarded.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conciergehq/concierge/internal/credential"
	"github.com/conciergehq/concierge/internal/history"
	"github.com/conciergehq/concierge/internal/normalize"
)

// Route describes how a named tool is served: which integration hosts it,
// what authentication it needs, and which executor policies apply.
type Route struct {
	// IntegrationID is the hosting integration, used as the credential
	// store key and in error messages.
	IntegrationID string

	// Path is the integration's URL path segment under the gateway origin.
	Path string

	// RequiresAuth marks tools that need a per-caller stored secret.
	RequiresAuth bool

	// Cacheable marks idempotent read/search tools eligible for the result
	// cache. Mutually exclusive with Mutating.
	Cacheable bool

	// Mutating marks tools with side effects (send, create, delete). A
	// mutating tool is never served from cache.
	Mutating bool

	// RecordHistory appends a search history record after each success.
	RecordHistory bool

	// TransformArgs optionally rewrites the tool arguments before dispatch.
	// It runs once per invocation, ahead of the cache lookup, so cache keys
	// and history records see the transformed form. Must not mutate its
	// input.
	TransformArgs func(args map[string]any) map[string]any

	// Config builds the per-call connection configuration. secret is the
	// caller's stored credential for OAuth integrations, empty otherwise.
	// A nil Config means the integration's process-wide configuration is
	// absent and every invocation fails with [ErrConfigurationMissing].
	Config func(secret string) ConnectionConfig
}

// Options controls one invocation.
type Options struct {
	// UseCache serves eligible read tools from the result cache.
	UseCache bool

	// Retries is the number of additional attempts after a failed first
	// attempt. Negative values use the executor default.
	Retries int

	// Timeout bounds each attempt's connect step and call step separately.
	// Zero or negative uses the executor default.
	Timeout time.Duration
}

// ExecutorConfig assembles an [Executor].
type ExecutorConfig struct {
	// Sessions opens per-call transport sessions. Required.
	Sessions *SessionManager

	// Credentials resolves per-caller secrets. May be nil when no
	// OAuth-backed route is registered.
	Credentials *credential.Resolver

	// Normalizer reshapes raw replies for display. May be nil (raw text is
	// returned unchanged).
	Normalizer *normalize.Normalizer

	// History records successful searches. May be nil.
	History *history.Recorder

	// Metrics records broker telemetry. May be nil.
	Metrics *Metrics

	// Retries, Timeout, and BackoffBase are the per-invocation defaults.
	// Zero values mean 2 retries, 20s, and 500ms respectively.
	Retries     int
	Timeout     time.Duration
	BackoffBase time.Duration

	// CacheCapacity and CacheTTL bound the result cache. Zero values mean
	// 256 entries and 5 minutes.
	CacheCapacity int
	CacheTTL      time.Duration
}

// Executor performs remote tool invocations with caching, timeout, and
// retry-with-backoff policy. It is safe for concurrent use; concurrent
// invocations each open their own session.
type Executor struct {
	sessions   *SessionManager
	creds      *credential.Resolver
	normalizer *normalize.Normalizer
	history    *history.Recorder
	metrics    *Metrics
	cache      *resultCache

	retries     int
	timeout     time.Duration
	backoffBase time.Duration

	// sleep is the backoff sleeper, replaceable in tests.
	sleep func(time.Duration)

	mu     sync.RWMutex
	routes map[string]Route // key: tool name
}

// NewExecutor creates an [Executor] from cfg. Routes are added afterwards
// via [Executor.RegisterRoute].
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Retries <= 0 {
		cfg.Retries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Executor{
		sessions:    cfg.Sessions,
		creds:       cfg.Credentials,
		normalizer:  cfg.Normalizer,
		history:     cfg.History,
		metrics:     cfg.Metrics,
		cache:       newResultCache(cfg.CacheCapacity, cfg.CacheTTL),
		retries:     cfg.Retries,
		timeout:     cfg.Timeout,
		backoffBase: cfg.BackoffBase,
		sleep:       time.Sleep,
		routes:      make(map[string]Route),
	}
}

// RegisterRoute binds a tool name to its route. Registering an existing name
// replaces the previous route.
func (e *Executor) RegisterRoute(toolName string, r Route) error {
	if toolName == "" {
		return fmt.Errorf("broker: route must have a non-empty tool name")
	}
	if r.IntegrationID == "" || r.Path == "" {
		return fmt.Errorf("broker: route for %q must have an integration id and path", toolName)
	}
	if r.Cacheable && r.Mutating {
		return fmt.Errorf("broker: route for %q cannot be both cacheable and mutating", toolName)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[toolName] = r
	return nil
}

// DefaultOptions returns the executor's configured per-invocation defaults
// with caching enabled.
func (e *Executor) DefaultOptions() Options {
	return Options{UseCache: true, Retries: e.retries, Timeout: e.timeout}
}

// Route returns the registered route for a tool name.
func (e *Executor) Route(toolName string) (Route, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.routes[toolName]
	return r, ok
}

// ClearCache empties the result cache. Administrative operation; safe to
// call concurrently with invocations.
func (e *Executor) ClearCache() {
	e.cache.Clear()
}

// Execute performs one tool invocation on behalf of callerID and returns the
// display text.
//
// Failure modes:
//   - [ErrUnknownTool]: no route registered, nothing opened.
//   - [credential.ErrNotConnected]: the caller has no stored secret for the
//     integration; never retried, no session opened.
//   - [ErrConfigurationMissing]: process-wide configuration absent; never
//     retried.
//   - [*RemoteCallError]: all attempts failed; carries the last error.
func (e *Executor) Execute(ctx context.Context, toolName string, args map[string]any, callerID string, opts Options) (string, error) {
	e.mu.RLock()
	route, ok := e.routes[toolName]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("broker: %w: %q", ErrUnknownTool, toolName)
	}

	if route.TransformArgs != nil {
		args = route.TransformArgs(args)
	}

	retries := opts.Retries
	if retries < 0 {
		retries = e.retries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	invocationID := uuid.NewString()
	slog.Debug("executing tool",
		"invocation_id", invocationID, "tool", toolName, "caller_id", callerID)

	start := time.Now()
	text, err := e.executeRaw(ctx, invocationID, route, toolName, args, callerID, opts.UseCache, retries, timeout)
	if err != nil {
		e.metrics.recordInvocation(ctx, toolName, statusOf(err), time.Since(start).Seconds())
		return "", err
	}
	e.metrics.recordInvocation(ctx, toolName, "ok", time.Since(start).Seconds())

	if e.normalizer != nil {
		text = e.normalizer.Normalize(toolName, text, args)
	}
	return text, nil
}

// executeRaw runs the cache lookup, credential resolution, and retry loop,
// returning the raw extracted reply text.
func (e *Executor) executeRaw(ctx context.Context, invocationID string, route Route, toolName string, args map[string]any, callerID string, useCache bool, retries int, timeout time.Duration) (string, error) {
	cacheable := useCache && route.Cacheable && !route.Mutating
	var key string
	if cacheable {
		key = cacheKey(callerID, toolName, args)
		if text, ok := e.cache.Get(key); ok {
			e.metrics.recordCacheLookup(ctx, true)
			slog.Debug("served from cache", "invocation_id", invocationID, "tool", toolName)
			return text, nil
		}
		e.metrics.recordCacheLookup(ctx, false)
	}

	// Credential absence and missing configuration are guaranteed-failure
	// paths; retrying them would waste the backoff budget.
	var secret string
	if route.RequiresAuth {
		if e.creds == nil {
			return "", fmt.Errorf("%w: no credential store configured for %s", ErrConfigurationMissing, route.IntegrationID)
		}
		var err error
		secret, err = e.creds.Resolve(ctx, callerID, route.IntegrationID)
		if err != nil {
			return "", err
		}
	}
	if !e.sessions.Configured() {
		return "", fmt.Errorf("%w: gateway api_key is not set", ErrConfigurationMissing)
	}
	if route.Config == nil {
		return "", fmt.Errorf("%w: %s is not configured", ErrConfigurationMissing, route.IntegrationID)
	}
	connCfg := route.Config(secret)

	attempts := retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := e.backoffBase << (attempt - 1)
			slog.Debug("backing off before retry",
				"invocation_id", invocationID, "tool", toolName,
				"attempt", attempt+1, "delay", delay)
			e.metrics.recordRetry(ctx, toolName)
			e.sleep(delay)
		}

		attemptStart := time.Now()
		text, err := e.attempt(ctx, route, toolName, args, connCfg, timeout)
		if err != nil {
			lastErr = err
			slog.Warn("tool call attempt failed",
				"invocation_id", invocationID, "tool", toolName,
				"attempt", attempt+1, "error", err)
			continue
		}

		if cacheable {
			e.cache.Put(key, text)
		}
		if route.RecordHistory {
			e.history.Record(history.Record{
				CallerID:    callerID,
				Query:       queryText(args),
				ResultCount: normalize.ItemCount(text),
				Duration:    time.Since(attemptStart),
				Timestamp:   time.Now(),
			})
		}
		return text, nil
	}

	return "", &RemoteCallError{Tool: toolName, Attempts: attempts, Err: lastErr}
}

// attempt performs one open-call-close cycle. The session is closed on every
// exit path; Close is idempotent and never masks the returned error.
func (e *Executor) attempt(ctx context.Context, route Route, toolName string, args map[string]any, connCfg ConnectionConfig, timeout time.Duration) (string, error) {
	sess, err := e.openWithTimeout(ctx, route, connCfg, timeout)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	reply, err := e.callWithTimeout(ctx, sess, toolName, args, timeout)
	if err != nil {
		return "", err
	}
	if reply.IsError {
		return "", fmt.Errorf("broker: tool %q reported an error: %s", toolName, extractText(reply))
	}
	return extractText(reply), nil
}

// openWithTimeout races the session open against a deadline timer. Losing
// the race does not cancel the dial: a session that completes late is
// closed by a drain goroutine so that every opened session is closed
// exactly once.
func (e *Executor) openWithTimeout(ctx context.Context, route Route, connCfg ConnectionConfig, timeout time.Duration) (*Session, error) {
	type result struct {
		sess *Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		sess, err := e.sessions.Open(ctx, route.IntegrationID, route.Path, connCfg)
		ch <- result{sess, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.sess, r.err
	case <-timer.C:
		go func() {
			if r := <-ch; r.sess != nil {
				r.sess.Close()
			}
		}()
		return nil, fmt.Errorf("broker: connect to %s timed out after %s", route.IntegrationID, timeout)
	}
}

// callWithTimeout races the remote call against a deadline timer with the
// same per-attempt budget as the open step. A late reply is discarded; the
// caller closes the session regardless.
func (e *Executor) callWithTimeout(ctx context.Context, sess *Session, toolName string, args map[string]any, timeout time.Duration) (*Reply, error) {
	type result struct {
		reply *Reply
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		reply, err := sess.CallTool(ctx, toolName, args)
		ch <- result{reply, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.reply, r.err
	case <-timer.C:
		return nil, fmt.Errorf("broker: call to %q timed out after %s", toolName, timeout)
	}
}

// extractText returns the first text-typed content item, or the whole
// content list JSON-stringified when the reply carries no text item.
func extractText(reply *Reply) string {
	for _, item := range reply.Content {
		if item.Type == "text" {
			return item.Text
		}
	}
	data, err := json.Marshal(reply.Content)
	if err != nil {
		return fmt.Sprintf("%+v", reply.Content)
	}
	return string(data)
}

// cacheKey derives the cache key from the caller, tool, and canonical JSON
// of the arguments. Keys are caller-scoped to prevent cross-caller leakage.
func cacheKey(callerID, toolName string, args map[string]any) string {
	doc, err := json.Marshal(args) // map keys marshal in sorted order
	if err != nil {
		doc = fmt.Appendf(nil, "%v", args)
	}
	return callerID + "\x1f" + toolName + "\x1f" + string(doc)
}

// queryText pulls the query string out of search tool arguments.
func queryText(args map[string]any) string {
	for _, key := range []string{"q", "query"} {
		if s, ok := args[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// statusOf maps an invocation error to a metrics status label.
func statusOf(err error) string {
	switch {
	case errors.Is(err, credential.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrConfigurationMissing):
		return "config_missing"
	default:
		return "error"
	}
}
