package normalize

import (
	"strings"
	"testing"
	"time"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	zone, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	return New(zone)
}

// TestMessageListEmpty verifies the fixed no-results sentence.
func TestMessageListEmpty(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	got := n.Normalize("search_emails", `{"messages":[]}`, nil)
	if got != "No messages found." {
		t.Errorf("Normalize = %q, want %q", got, "No messages found.")
	}
}

// TestMessageListMissingFieldIsIdentity verifies that a payload without the
// canonical items field round-trips unchanged.
func TestMessageListMissingFieldIsIdentity(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := `{"threads":[{"subject":"hi"}]}`
	if got := n.Normalize("list_emails", raw, nil); got != raw {
		t.Errorf("Normalize = %q, want raw unchanged", got)
	}
}

// TestMessageListUnparseableIsIdentity verifies that non-JSON replies
// round-trip unchanged.
func TestMessageListUnparseableIsIdentity(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := "503 upstream unavailable"
	if got := n.Normalize("search_emails", raw, nil); got != raw {
		t.Errorf("Normalize = %q, want raw unchanged", got)
	}
}

// TestMessageListRendering verifies enumeration, flag markers, and snippet
// truncation.
func TestMessageListRendering(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	longSnippet := strings.Repeat("a", 200)
	raw := `{"messages":[
		{"subject":"Invoice #42","from":"billing@vendor.io","date":"2024-03-05T14:30:00Z","snippet":"` + longSnippet + `","unread":true,"hasAttachment":true},
		{"from":"noreply@site.com","snippet":"short"}
	]}`

	got := n.Normalize("search_emails", raw, nil)

	if !strings.Contains(got, "1. Invoice #42 [unread] [attachment]") {
		t.Errorf("missing first item header with flag markers:\n%s", got)
	}
	if !strings.Contains(got, "From: billing@vendor.io") {
		t.Errorf("missing sender line:\n%s", got)
	}
	if !strings.Contains(got, "2. (no subject)") {
		t.Errorf("missing placeholder subject for second item:\n%s", got)
	}
	if !strings.Contains(got, "…") {
		t.Errorf("long snippet not truncated with ellipsis:\n%s", got)
	}
	if strings.Contains(got, longSnippet) {
		t.Error("snippet was not truncated")
	}
	if strings.Count(got, "[unread]") != 1 {
		t.Error("unread marker must come from item flags, not be inferred")
	}
}

// TestSearchResultsRendering verifies web search hits and the empty sentence.
func TestSearchResultsRendering(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := `{"results":[{"title":"Go slices","url":"https://go.dev/blog/slices","text":"Slices are views."}]}`
	got := n.Normalize("web_search_exa", raw, nil)
	if !strings.Contains(got, "1. Go slices") || !strings.Contains(got, "https://go.dev/blog/slices") {
		t.Errorf("unexpected rendering:\n%s", got)
	}

	if got := n.Normalize("web_search_exa", `{"results":[]}`, nil); got != "No results found." {
		t.Errorf("empty results = %q", got)
	}
}

// TestEventListRendering verifies calendar events render dates in the
// display zone and fall back to raw date strings.
func TestEventListRendering(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := `{"items":[
		{"summary":"Standup","start":{"dateTime":"2024-03-05T15:00:00Z"},"end":{"dateTime":"2024-03-05T15:30:00Z"},"organizer":{"displayName":"Dana"},"location":"Room 2"},
		{"summary":"Offsite","start":{"date":"2024-03-08"},"end":{"date":"2024-03-09"}},
		{"summary":"Mystery","start":"whenever"}
	]}`

	got := n.Normalize("list_events", raw, nil)

	// 15:00 UTC is 10:00 AM in America/New_York (EST).
	if !strings.Contains(got, "Tue, Mar 5, 2024 10:00 AM") {
		t.Errorf("start time not rendered in display zone:\n%s", got)
	}
	if !strings.Contains(got, "Organizer: Dana") {
		t.Errorf("organizer missing:\n%s", got)
	}
	if !strings.Contains(got, "Location: Room 2") {
		t.Errorf("location missing:\n%s", got)
	}
	if !strings.Contains(got, "Fri, Mar 8, 2024") {
		t.Errorf("all-day date not rendered:\n%s", got)
	}
	if !strings.Contains(got, "whenever") {
		t.Errorf("unparseable date not passed through:\n%s", got)
	}

	if got := n.Normalize("list_events", `{"items":[]}`, nil); got != "No events found." {
		t.Errorf("empty events = %q", got)
	}
}

// TestEventCreatePrefersCallerTimes verifies the confirmation uses the
// caller-supplied start/end in the caller's zone, not the remote echo.
func TestEventCreatePrefersCallerTimes(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := "Event created: Standup (id: evt_123). Starts 2024-03-05 23:00 GMT+8."
	args := map[string]any{
		"summary":  "Standup",
		"start":    "2024-03-05T15:00:00Z",
		"end":      "2024-03-05T15:30:00Z",
		"timeZone": "Europe/Berlin",
	}

	got := n.Normalize("create_event", raw, args)

	// 15:00 UTC is 4:00 PM in Europe/Berlin (CET).
	want := `Created "Standup" from Tue, Mar 5, 2024 4:00 PM to Tue, Mar 5, 2024 4:30 PM (Europe/Berlin).`
	if got != want {
		t.Errorf("Normalize = %q\nwant %q", got, want)
	}
	if strings.Contains(got, "GMT+8") {
		t.Error("remote echo's own time formatting must not be trusted")
	}
}

// TestEventCreateDefaultZone verifies the fixed default zone applies when
// the caller supplies none.
func TestEventCreateDefaultZone(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	args := map[string]any{
		"start": "2024-03-05T15:00:00Z",
		"end":   "2024-03-05T16:00:00Z",
	}
	got := n.Normalize("create_event", "Event created: Review", args)

	if !strings.Contains(got, "(America/New_York)") {
		t.Errorf("default zone not applied: %q", got)
	}
	if !strings.Contains(got, "10:00 AM") {
		t.Errorf("time not converted to default zone: %q", got)
	}
}

// TestEventCreateDegradesToRaw verifies the raw reply survives when neither
// the echo pattern nor the args yield a title.
func TestEventCreateDegradesToRaw(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := `{"status":"ok"}`
	if got := n.Normalize("create_event", raw, nil); got != raw {
		t.Errorf("Normalize = %q, want raw unchanged", got)
	}
}

// TestStatusMapping verifies substring-to-sentence mapping and passthrough.
func TestStatusMapping(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	cases := []struct {
		raw  string
		want string
	}{
		{`{"status":"connected"}`, "Your account is connected and working."},
		{"token expired, refresh failed", "Your connection has expired. Please reconnect your account."},
		{"oauth error: invalid_grant", "Your connection has expired. Please reconnect your account."},
		{"account disconnected", "Your account is not connected. Connect your account first."},
		{"HTTP 418 teapot", "HTTP 418 teapot"},
	}
	for _, tc := range cases {
		if got := n.Normalize("check_connection_status", tc.raw, nil); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

// TestDefaultFamilyPassthrough verifies unknown tools are identity.
func TestDefaultFamilyPassthrough(t *testing.T) {
	t.Parallel()
	n := newTestNormalizer(t)

	raw := `{"whatever": 1}`
	if got := n.Normalize("send_email", raw, nil); got != raw {
		t.Errorf("Normalize = %q, want raw unchanged", got)
	}
}

// TestItemCount verifies counting across the canonical array fields.
func TestItemCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want int
	}{
		{`{"results":[1,2,3]}`, 3},
		{`{"messages":[]}`, 0},
		{`{"items":[{},{}]}`, 2},
		{`not json`, 0},
		{`{"other":"shape"}`, 0},
	}
	for _, tc := range cases {
		if got := ItemCount(tc.raw); got != tc.want {
			t.Errorf("ItemCount(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}
