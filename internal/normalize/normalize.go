// Package normalize converts raw tool replies into human-readable chat text.
//
// Every integration returns its own JSON shape; the normalizer dispatches on
// the tool's family and renders a compact, markdown-ish block per item.
// Normalization is total: any parse failure degrades to returning the raw
// (or partially formatted) text, never an error. Breaking chat output on
// upstream format drift is considered worse than showing raw JSON.
package normalize

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Family identifies how a tool's raw reply should be rendered. New tool
// families are added by extending this set and its renderer, not by
// threading name checks through existing renderers.
type Family int

const (
	// FamilyDefault passes the raw reply through unchanged.
	FamilyDefault Family = iota

	// FamilyMessageList renders a mailbox listing ("messages" array).
	FamilyMessageList

	// FamilySearchResults renders web search hits ("results" array).
	FamilySearchResults

	// FamilyEventList renders calendar events ("items" array).
	FamilyEventList

	// FamilyEventCreate renders a single created event, trusting the
	// caller-supplied times over the remote echo.
	FamilyEventCreate

	// FamilyStatus maps known status substrings to fixed sentences.
	FamilyStatus
)

// String returns the human-readable name of the family.
func (f Family) String() string {
	switch f {
	case FamilyDefault:
		return "default"
	case FamilyMessageList:
		return "message-list"
	case FamilySearchResults:
		return "search-results"
	case FamilyEventList:
		return "event-list"
	case FamilyEventCreate:
		return "event-create"
	case FamilyStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Normalizer dispatches raw tool replies to per-family renderers.
// It is safe for concurrent use after registration is complete.
type Normalizer struct {
	families map[string]Family
	zone     *time.Location
}

// New creates a [Normalizer] with the built-in tool-to-family mapping.
// defaultZone is the display timezone used when a caller supplies none;
// nil means UTC.
func New(defaultZone *time.Location) *Normalizer {
	if defaultZone == nil {
		defaultZone = time.UTC
	}
	n := &Normalizer{
		families: make(map[string]Family),
		zone:     defaultZone,
	}
	n.Register("list_emails", FamilyMessageList)
	n.Register("search_emails", FamilyMessageList)
	n.Register("web_search_exa", FamilySearchResults)
	n.Register("list_events", FamilyEventList)
	n.Register("create_event", FamilyEventCreate)
	n.Register("check_connection_status", FamilyStatus)
	return n
}

// Register assigns a tool name to a family, replacing any prior assignment.
// Not safe to call concurrently with Normalize.
func (n *Normalizer) Register(toolName string, f Family) {
	n.families[toolName] = f
}

// FamilyOf returns the family assigned to toolName, or [FamilyDefault].
func (n *Normalizer) FamilyOf(toolName string) Family {
	if f, ok := n.families[toolName]; ok {
		return f
	}
	return FamilyDefault
}

// Normalize renders raw for display. args are the original tool arguments,
// consulted by renderers that trust caller input over the remote echo
// (event creation times). Normalize never fails: it returns raw when it
// cannot do better.
func (n *Normalizer) Normalize(toolName, raw string, args map[string]any) (out string) {
	// Failure boundary: a renderer bug must degrade to raw text, never
	// surface as an invocation failure.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("normalizer recovered, returning raw reply",
				"tool", toolName, "panic", r)
			out = raw
		}
	}()

	switch n.FamilyOf(toolName) {
	case FamilyMessageList:
		return renderMessageList(raw, n.zone)
	case FamilySearchResults:
		return renderSearchResults(raw)
	case FamilyEventList:
		return renderEventList(raw, n.zone)
	case FamilyEventCreate:
		return renderEventCreate(raw, args, n.zone)
	case FamilyStatus:
		return renderStatus(raw)
	default:
		return raw
	}
}

// ItemCount reports how many items a raw list-style reply carries, checking
// the canonical array fields in a fixed order. It returns 0 when raw is not
// a recognisable list payload. Used for search history records.
func ItemCount(raw string) int {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0
	}
	for _, field := range []string{"results", "messages", "items", "events"} {
		if arr, ok := payload[field].([]any); ok {
			return len(arr)
		}
	}
	return 0
}
