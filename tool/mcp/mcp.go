// Package mcp bridges Model Context Protocol servers into the agentloop tool
// contract. It connects to configured servers, discovers their tools, and
// adapts each descriptor into a tool.Tool so dynamic tool sources plug into
// the runner like any hand-written tool.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentloop-ai/agentloop/core"
	"github.com/agentloop-ai/agentloop/logging"
	"github.com/agentloop-ai/agentloop/tool"
)

// callTimeout is the default per-call timeout for MCP tool execution.
const callTimeout = 30 * time.Second

// ServerConfig describes one MCP server connection.
type ServerConfig struct {
	// Name namespaces the server's tools (tool names become
	// "mcp_<server>_<tool>").
	Name string
	// Transport selects the connection type: "stdio" or "http".
	Transport string
	// Command, Args and Env configure a stdio server process.
	Command string
	Args    []string
	Env     map[string]string
	// URL configures a streamable-HTTP server.
	URL string
}

// client abstracts the MCP client surface used by the bridge, for testability.
type client interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type serverConn struct {
	name   string
	client client
}

// Bridge manages connections to MCP servers and exposes their tools as
// tool.Tool instances.
type Bridge struct {
	servers []serverConn
	tools   []tool.Tool
	logger  logging.Logger
	mu      sync.RWMutex
}

// NewBridge connects to all configured MCP servers, discovers their tools and
// wraps them. Discovery tolerates individual server failures; it only errors
// when every server fails.
func NewBridge(ctx context.Context, servers []ServerConfig, logger logging.Logger) (*Bridge, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	b := &Bridge{logger: logger}

	for _, srv := range servers {
		conn, err := b.connect(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		b.servers = append(b.servers, *conn)
	}

	if err := b.discover(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("discover tools: %w", err)
	}

	return b, nil
}

// newBridgeWithClients creates a Bridge with pre-built clients (for testing).
func newBridgeWithClients(ctx context.Context, servers []serverConn, logger logging.Logger) (*Bridge, error) {
	b := &Bridge{servers: servers, logger: logger}
	if err := b.discover(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bridge) connect(ctx context.Context, srv ServerConfig) (*serverConn, error) {
	var c client
	var err error

	switch srv.Transport {
	case "stdio":
		env := make([]string, 0, len(srv.Env))
		for k, v := range srv.Env {
			env = append(env, k+"="+v)
		}
		c, err = mcpclient.NewStdioMCPClient(srv.Command, env, srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case "http":
		t, tErr := transport.NewStreamableHTTP(srv.URL)
		if tErr != nil {
			return nil, fmt.Errorf("create http transport: %w", tErr)
		}
		httpClient := mcpclient.NewClient(t)
		if err = httpClient.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
		c = httpClient
	default:
		return nil, &core.InvalidConfigurationError{
			Message: fmt.Sprintf("unsupported mcp transport %q", srv.Transport),
		}
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agentloop",
		Version: "1.0.0",
	}

	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err = ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return nil, fmt.Errorf("initialize: %w", err)
		}
	}

	b.logger.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)

	return &serverConn{name: srv.Name, client: c}, nil
}

func (b *Bridge) discover(ctx context.Context) error {
	var errs []string
	successCount := 0

	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp server discovery failed, skipping",
				"server", srv.name,
				"error", err,
			)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}

		for _, t := range result.Tools {
			adapter := newToolAdapter(srv.name, srv.client, t, b.logger)
			b.tools = append(b.tools, adapter)
			b.logger.Debug("mcp tool discovered",
				"server", srv.name,
				"tool", t.Name,
				"full_name", adapter.Name())
		}

		b.logger.Info("mcp tools discovered", "server", srv.name, "count", len(result.Tools))
		successCount++
	}

	if successCount == 0 && len(errs) > 0 {
		return fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Tools returns all discovered MCP tools, ready to register on an agent.
func (b *Bridge) Tools() []tool.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]tool.Tool, len(b.tools))
	copy(out, b.tools)
	return out
}

// Close shuts down all MCP server connections.
func (b *Bridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// toolAdapter wraps a single MCP tool as a tool.Tool.
type toolAdapter struct {
	serverName string
	client     client
	mcpTool    mcp.Tool
	fullName   string
	logger     logging.Logger
}

func newToolAdapter(serverName string, c client, t mcp.Tool, logger logging.Logger) *toolAdapter {
	return &toolAdapter{
		serverName: serverName,
		client:     c,
		mcpTool:    t,
		fullName:   fmt.Sprintf("mcp_%s_%s", sanitizeName(serverName), sanitizeName(t.Name)),
		logger:     logger,
	}
}

// Name implements tool.Tool.
func (a *toolAdapter) Name() string { return a.fullName }

// Description implements tool.Tool.
func (a *toolAdapter) Description() string {
	if a.mcpTool.Description != "" {
		return a.mcpTool.Description
	}
	return fmt.Sprintf("MCP tool %q from server %q", a.mcpTool.Name, a.serverName)
}

// InputSchema implements tool.Tool.
func (a *toolAdapter) InputSchema() map[string]any {
	schema := map[string]any{"type": "object"}
	if a.mcpTool.InputSchema.Properties == nil && a.mcpTool.InputSchema.Required == nil {
		return schema
	}
	data, err := json.Marshal(a.mcpTool.InputSchema)
	if err != nil {
		return schema
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return schema
	}
	return m
}

// Execute implements tool.Tool.
func (a *toolAdapter) Execute(ctx context.Context, arguments string, _ *core.RunContext) (string, error) {
	var args map[string]any
	trimmed := strings.TrimSpace(arguments)
	if trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
			return "", tool.NewToolError(a.fullName, fmt.Sprintf("invalid arguments: %v", err), tool.CodeValidation)
		}
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = a.mcpTool.Name
	callReq.Params.Arguments = args

	a.logger.Debug("mcp tool call",
		"server", a.serverName,
		"tool", a.mcpTool.Name,
		"full_name", a.fullName)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := a.client.CallTool(callCtx, callReq)
	if err != nil {
		return "", tool.NewToolError(a.fullName, fmt.Sprintf("mcp call failed: %v", err), tool.CodeExecution)
	}

	content := extractContent(result)
	if result.IsError {
		return "", tool.NewToolError(a.fullName, content, tool.CodeExecution)
	}
	return content, nil
}

// extractContent converts MCP CallToolResult content to a string.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName lowercases a name and replaces characters outside [a-z0-9_]
// so composed tool names stay tool-name-shaped.
func sanitizeName(s string) string {
	s = strings.ToLower(s)
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return sb.String()
}
