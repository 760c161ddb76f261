package broker

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// ContentItem is one typed entry in a remote reply's content list. Text
// items carry their payload in Text; any other content kind is passed
// through as structured data.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Reply is the raw outcome of one remote tool call.
type Reply struct {
	// Content is the reply's typed content list.
	Content []ContentItem

	// IsError indicates an application-level error reported by the remote
	// tool (as opposed to a transport failure, which surfaces as a Go error).
	IsError bool
}

// Conn is one live connection to a remote server. Connections are
// single-use: one invocation attempt opens, calls, and closes exactly one
// Conn.
type Conn interface {
	// CallTool invokes the named remote tool with the given arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*Reply, error)

	// Close releases the connection. Must be safe to call on a connection
	// whose handshake failed partway.
	Close() error
}

// Dialer opens connections to remote server endpoints. The production
// implementation is [MCPDialer]; tests substitute doubles.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// MCPDialer dials remote MCP servers over the streamable HTTP transport
// using the official MCP Go SDK.
type MCPDialer struct {
	// client is reused across all dials; the SDK allows a single Client to
	// manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// Compile-time interface check.
var _ Dialer = (*MCPDialer)(nil)

// NewMCPDialer creates a ready-to-use [MCPDialer].
func NewMCPDialer() *MCPDialer {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "concierge-broker", Version: "1.0.0"},
		nil,
	)
	return &MCPDialer{client: client}
}

// Dial connects to endpoint and performs the MCP handshake.
func (d *MCPDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	session, err := d.client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil)
	if err != nil {
		return nil, fmt.Errorf("broker: connect: %w", err)
	}
	return &mcpConn{session: session}, nil
}

// mcpConn adapts an SDK client session to the [Conn] interface.
type mcpConn struct {
	session *mcpsdk.ClientSession
}

func (c *mcpConn) CallTool(ctx context.Context, name string, args map[string]any) (*Reply, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("broker: call tool %q: %w", name, err)
	}

	reply := &Reply{IsError: result.IsError}
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			reply.Content = append(reply.Content, ContentItem{Type: "text", Text: tc.Text})
			continue
		}
		reply.Content = append(reply.Content, ContentItem{Type: "data", Data: content})
	}
	return reply, nil
}

func (c *mcpConn) Close() error {
	return c.session.Close()
}
