package scm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultMCPCommand starts the GitHub MCP server.
var DefaultMCPCommand = []string{"npx", "-y", "@modelcontextprotocol/server-github"}

// Tools calls named tools on a GitHub MCP server and returns their text.
type Tools interface {
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// MCPTools runs the GitHub MCP server over stdio. The server process is
// started on the first call.
type MCPTools struct {
	command []string
	token   string
	timeout time.Duration

	mu     sync.Mutex
	client client.MCPClient
}

// DefaultCallTimeout bounds each MCP call when no timeout is given.
const DefaultCallTimeout = 30 * time.Second

// NewMCPTools prepares a stdio MCP client. command defaults to
// DefaultMCPCommand; timeout bounds the handshake and each tool call.
func NewMCPTools(command []string, token string, timeout time.Duration) *MCPTools {
	if len(command) == 0 {
		command = DefaultMCPCommand
	}
	return &MCPTools{command: command, token: token, timeout: timeoutOrDefault(timeout)}
}

// NewMCPToolsFromClient wraps an already initialized client.
func NewMCPToolsFromClient(c client.MCPClient, timeout time.Duration) *MCPTools {
	return &MCPTools{client: c, timeout: timeoutOrDefault(timeout)}
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultCallTimeout
	}
	return d
}

func (t *MCPTools) connect(ctx context.Context) (client.MCPClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client, nil
	}

	env := []string{"GITHUB_PERSONAL_ACCESS_TOKEN=" + t.token}
	c, err := client.NewStdioMCPClient(t.command[0], env, t.command[1:]...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", t.command[0], err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("start %s: %w", t.command[0], err)
	}

	initCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "logmedic", Version: "1"}
	if _, err := c.Initialize(initCtx, init); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize MCP session: %w", err)
	}
	t.client = c
	return c, nil
}

// CallTool invokes name and returns the concatenated text content. A tool
// result flagged as an error is returned as an error.
func (t *MCPTools) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	c, err := t.connect(ctx)
	if err != nil {
		return "", err
	}
	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(callCtx, req)
	if err != nil {
		return "", err
	}
	text := resultText(res)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return "", errors.New(text)
	}
	return text, nil
}

// Close stops the server process, if it was started.
func (t *MCPTools) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func resultText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		case mcp.EmbeddedResource:
			parts = append(parts, resourceText(v.Resource))
		case *mcp.EmbeddedResource:
			parts = append(parts, resourceText(v.Resource))
		}
	}
	return strings.Join(parts, "\n")
}

func resourceText(r mcp.ResourceContents) string {
	switch v := r.(type) {
	case mcp.TextResourceContents:
		return v.Text
	case *mcp.TextResourceContents:
		return v.Text
	}
	return ""
}
