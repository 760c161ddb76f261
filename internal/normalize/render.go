package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// snippetLimit caps preview text; longer snippets are cut and marked with an
// ellipsis.
const snippetLimit = 140

// dateLayouts are tried in order when parsing item date strings.
var dateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// eventCreatedPattern extracts the event title from the remote's creation
// echo, e.g. "Event created: Standup (id: abc123)".
var eventCreatedPattern = regexp.MustCompile(`(?i)event created:?\s*([^\n(]+)`)

// ── Message lists ─────────────────────────────────────────────────────────────

// renderMessageList renders a mailbox listing. The canonical items field is
// "messages"; when it is absent or raw is not JSON the raw text is returned
// unchanged.
func renderMessageList(raw string, zone *time.Location) string {
	items, ok := itemsField(raw, "messages")
	if !ok {
		return raw
	}
	if len(items) == 0 {
		return "No messages found."
	}

	var b strings.Builder
	for i, item := range items {
		m, _ := item.(map[string]any)
		if i > 0 {
			b.WriteString("\n\n")
		}

		subject := stringField(m, "subject")
		if subject == "" {
			subject = "(no subject)"
		}
		var markers string
		if boolField(m, "unread") {
			markers += " [unread]"
		}
		if boolField(m, "hasAttachment") {
			markers += " [attachment]"
		}

		fmt.Fprintf(&b, "%d. %s%s\n", i+1, subject, markers)
		if from := stringField(m, "from"); from != "" {
			fmt.Fprintf(&b, "   From: %s\n", from)
		}
		if date := stringField(m, "date"); date != "" {
			fmt.Fprintf(&b, "   Date: %s\n", formatDate(date, zone))
		}
		if snippet := stringField(m, "snippet"); snippet != "" {
			fmt.Fprintf(&b, "   %s", truncate(snippet))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ── Web search results ────────────────────────────────────────────────────────

// renderSearchResults renders web search hits from the "results" array.
func renderSearchResults(raw string) string {
	items, ok := itemsField(raw, "results")
	if !ok {
		return raw
	}
	if len(items) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, item := range items {
		m, _ := item.(map[string]any)
		if i > 0 {
			b.WriteString("\n\n")
		}

		title := stringField(m, "title")
		if title == "" {
			title = stringField(m, "url")
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		if url := stringField(m, "url"); url != "" {
			fmt.Fprintf(&b, "   %s\n", url)
		}
		snippet := stringField(m, "snippet")
		if snippet == "" {
			snippet = stringField(m, "text")
		}
		if snippet != "" {
			fmt.Fprintf(&b, "   %s", truncate(snippet))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ── Calendar event lists ──────────────────────────────────────────────────────

// renderEventList renders calendar events from the "items" array.
func renderEventList(raw string, zone *time.Location) string {
	items, ok := itemsField(raw, "items")
	if !ok {
		return raw
	}
	if len(items) == 0 {
		return "No events found."
	}

	var b strings.Builder
	for i, item := range items {
		m, _ := item.(map[string]any)
		if i > 0 {
			b.WriteString("\n\n")
		}

		summary := stringField(m, "summary")
		if summary == "" {
			summary = "(untitled event)"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, summary)

		start := eventTime(m["start"])
		end := eventTime(m["end"])
		switch {
		case start != "" && end != "":
			fmt.Fprintf(&b, "   %s to %s\n", formatDate(start, zone), formatDate(end, zone))
		case start != "":
			fmt.Fprintf(&b, "   %s\n", formatDate(start, zone))
		}

		if organizer := organizerName(m["organizer"]); organizer != "" {
			fmt.Fprintf(&b, "   Organizer: %s\n", organizer)
		}
		if location := stringField(m, "location"); location != "" {
			fmt.Fprintf(&b, "   Location: %s\n", location)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ── Single event creation ─────────────────────────────────────────────────────

// renderEventCreate confirms a created event. The title comes from the
// remote echo (fixed pattern) or the caller's summary; the times always come
// from the caller's arguments, reformatted in the requested timezone,
// because the remote's own formatting may not reflect the zone the caller
// intended.
func renderEventCreate(raw string, args map[string]any, defaultZone *time.Location) string {
	title := ""
	if m := eventCreatedPattern.FindStringSubmatch(raw); m != nil {
		title = strings.TrimSpace(m[1])
	}
	if title == "" {
		title = stringField(args, "summary")
	}
	if title == "" {
		return raw
	}

	zone := defaultZone
	if name := stringField(args, "timeZone"); name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			zone = loc
		}
	}

	start := stringField(args, "start")
	end := stringField(args, "end")
	if start == "" || end == "" {
		return fmt.Sprintf("Created %q.", title)
	}

	return fmt.Sprintf("Created %q from %s to %s (%s).",
		title, formatDate(start, zone), formatDate(end, zone), zone)
}

// ── Status checks ─────────────────────────────────────────────────────────────

// statusSentences maps reply substrings to fixed human sentences, checked in
// order. More specific phrases come first so that "not connected" never
// matches the healthy sentence via its "connected" suffix.
var statusSentences = []struct {
	substr   string
	sentence string
}{
	{"invalid_grant", "Your connection has expired. Please reconnect your account."},
	{"expired", "Your connection has expired. Please reconnect your account."},
	{"revoked", "Your connection has been revoked. Please reconnect your account."},
	{"not connected", "Your account is not connected. Connect your account first."},
	{"disconnected", "Your account is not connected. Connect your account first."},
	{"connected", "Your account is connected and working."},
}

// renderStatus maps known substrings to fixed sentences and passes anything
// else through unchanged.
func renderStatus(raw string) string {
	lower := strings.ToLower(raw)
	for _, s := range statusSentences {
		if strings.Contains(lower, s.substr) {
			return s.sentence
		}
	}
	return raw
}

// ── Shared helpers ────────────────────────────────────────────────────────────

// itemsField parses raw as a JSON object and returns the named array field.
// ok is false when raw is not JSON or the field is missing or not an array,
// which callers treat as "return raw unchanged".
func itemsField(raw, field string) ([]any, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}
	items, ok := payload[field].([]any)
	return items, ok
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// eventTime extracts a time string from a calendar time value, which may be
// a bare string or an object with dateTime or date fields.
func eventTime(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s := stringField(t, "dateTime"); s != "" {
			return s
		}
		return stringField(t, "date")
	}
	return ""
}

// organizerName extracts a display name from an organizer value, which may
// be a bare string or an object with displayName or email fields.
func organizerName(v any) string {
	switch o := v.(type) {
	case string:
		return o
	case map[string]any:
		if s := stringField(o, "displayName"); s != "" {
			return s
		}
		return stringField(o, "email")
	}
	return ""
}

// formatDate parses s against the known layouts and renders it in zone.
// Unparseable dates are returned verbatim rather than dropped.
func formatDate(s string, zone *time.Location) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if layout == "2006-01-02" {
				// All-day value: no meaningful clock time to shift.
				return t.Format("Mon, Jan 2, 2006")
			}
			return t.In(zone).Format("Mon, Jan 2, 2006 3:04 PM")
		}
	}
	return s
}

// truncate caps s at snippetLimit runes, marking the cut with an ellipsis.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLimit {
		return s
	}
	return string(runes[:snippetLimit]) + "…"
}
