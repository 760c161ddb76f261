// Package integration defines the catalogue of remote MCP integrations the
// broker can reach: their descriptors, advertised tools, and a registry that
// refreshes the catalogue from a remote endpoint with a compiled-in fallback.
package integration

// Auth selects how an integration authenticates.
type Auth string

const (
	// AuthNone means the integration needs no caller-specific secret; any
	// required key is deployment-wide and embedded in the connection config.
	AuthNone Auth = "none"

	// AuthOAuth means each caller must have completed an authorization flow;
	// the stored refresh token is embedded in the connection config.
	AuthOAuth Auth = "oauth"
)

// ToolInfo describes one tool advertised by an integration.
type ToolInfo struct {
	// Name is the tool's unique identifier, e.g. "search_emails".
	Name string `json:"name"`

	// Description is shown to the model runtime when declaring the tool.
	Description string `json:"description"`

	// Parameters is the JSON Schema for the tool's arguments. The hosting
	// runtime validates arguments against it before the broker is invoked.
	Parameters map[string]any `json:"parameters"`

	// ReadOnly marks tools with no side effects. Only read-only tools are
	// eligible for result caching.
	ReadOnly bool `json:"read_only"`
}

// Descriptor is the static record for one integration. Descriptors are
// immutable once loaded; the registry swaps whole slices, never mutates.
type Descriptor struct {
	// ID identifies the integration, e.g. "gmail". Used as the credential
	// store key and in log messages.
	ID string `json:"id"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// Description is a one-line summary shown in the connection UI.
	Description string `json:"description"`

	// Icon is a URL or emoji shown next to the name.
	Icon string `json:"icon"`

	// Path is the URL path segment under the gateway origin, e.g.
	// "@shinzolabs/gmail-mcp". The full endpoint is
	// <gateway>/<Path>/mcp?config=…&api_key=….
	Path string `json:"path"`

	// Auth selects the authentication mode.
	Auth Auth `json:"auth"`

	// Tools lists the tools this integration advertises.
	Tools []ToolInfo `json:"tools"`
}

// Tool returns the named tool's info and whether it exists.
func (d *Descriptor) Tool(name string) (ToolInfo, bool) {
	for _, t := range d.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolInfo{}, false
}

// Builtin returns the compiled-in integration catalogue, used at startup and
// as the fallback when the remote registry is unreachable.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			ID:          "exa",
			Name:        "Exa Web Search",
			Description: "Search the web and return ranked results with snippets.",
			Icon:        "🔎",
			Path:        "exa",
			Auth:        AuthNone,
			Tools: []ToolInfo{
				{
					Name:        "web_search_exa",
					Description: "Search the web for a natural-language query.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"query":      map[string]any{"type": "string", "description": "The search query."},
							"numResults": map[string]any{"type": "integer", "default": 5},
						},
						"required": []any{"query"},
					},
					ReadOnly: true,
				},
			},
		},
		{
			ID:          "gmail",
			Name:        "Gmail",
			Description: "Read, search, and send email on the caller's behalf.",
			Icon:        "✉️",
			Path:        "@shinzolabs/gmail-mcp",
			Auth:        AuthOAuth,
			Tools: []ToolInfo{
				{
					Name:        "list_emails",
					Description: "List the most recent emails in the caller's inbox.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"maxResults": map[string]any{"type": "integer", "default": 10},
						},
					},
					ReadOnly: true,
				},
				{
					Name:        "search_emails",
					Description: "Search the caller's mailbox with structured filters.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"query":         map[string]any{"type": "string", "description": "Free text matched against message content."},
							"after":         map[string]any{"type": "string", "description": "Only messages after this date (YYYY-MM-DD)."},
							"before":        map[string]any{"type": "string", "description": "Only messages before this date (YYYY-MM-DD)."},
							"from":          map[string]any{"type": "string", "description": "Only messages from this sender."},
							"hasAttachment": map[string]any{"type": "boolean", "default": false},
							"isUnread":      map[string]any{"type": "boolean", "default": false},
							"maxResults":    map[string]any{"type": "integer", "default": 10},
						},
					},
					ReadOnly: true,
				},
				{
					Name:        "get_email",
					Description: "Fetch a single email by id.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"id": map[string]any{"type": "string"},
						},
						"required": []any{"id"},
					},
					ReadOnly: true,
				},
				{
					Name:        "send_email",
					Description: "Send an email from the caller's account.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"to":      map[string]any{"type": "string"},
							"subject": map[string]any{"type": "string"},
							"body":    map[string]any{"type": "string"},
						},
						"required": []any{"to", "subject", "body"},
					},
				},
			},
		},
		{
			ID:          "google-calendar",
			Name:        "Google Calendar",
			Description: "List and create calendar events on the caller's behalf.",
			Icon:        "📅",
			Path:        "google-calendar",
			Auth:        AuthOAuth,
			Tools: []ToolInfo{
				{
					Name:        "list_events",
					Description: "List upcoming events on the caller's primary calendar.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"timeMin":    map[string]any{"type": "string", "description": "RFC 3339 lower bound."},
							"timeMax":    map[string]any{"type": "string", "description": "RFC 3339 upper bound."},
							"maxResults": map[string]any{"type": "integer", "default": 10},
						},
					},
					ReadOnly: true,
				},
				{
					Name:        "create_event",
					Description: "Create a calendar event.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"summary":  map[string]any{"type": "string"},
							"start":    map[string]any{"type": "string", "description": "RFC 3339 start time."},
							"end":      map[string]any{"type": "string", "description": "RFC 3339 end time."},
							"timeZone": map[string]any{"type": "string", "description": "IANA zone for display."},
						},
						"required": []any{"summary", "start", "end"},
					},
				},
				{
					Name:        "delete_event",
					Description: "Delete a calendar event by id.",
					Parameters: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"eventId": map[string]any{"type": "string"},
						},
						"required": []any{"eventId"},
					},
				},
				{
					Name:        "check_connection_status",
					Description: "Report whether the caller's calendar connection is healthy.",
					Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
					ReadOnly:    true,
				},
			},
		},
	}
}
