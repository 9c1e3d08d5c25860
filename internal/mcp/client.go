package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Client represents a connection to an MCP server
type Client interface {
	// Initialize performs the MCP handshake
	Initialize(ctx context.Context) error

	// ListTools returns available tools from this MCP server
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes a tool with given arguments
	CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error)

	// Close disconnects from the MCP server
	Close() error

	// Name returns the client identifier
	Name() string
}

// Tool represents an MCP tool available for invocation
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any // JSON Schema for input parameters
	ServerName  string         // Which server provides this tool
}

// transport moves one JSON-RPC exchange over a concrete channel
type transport interface {
	roundTrip(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error)
	close() error
}

// Conn implements Client on top of a transport
type Conn struct {
	name   string
	kind   string
	tr     transport
	reqID  atomic.Int32
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

func newConn(name, kind string, tr transport, logger *slog.Logger) *Conn {
	return &Conn{name: name, kind: kind, tr: tr, logger: logger}
}

// Name returns the client identifier
func (c *Conn) Name() string {
	return c.name
}

// Initialize performs the MCP handshake
func (c *Conn) Initialize(ctx context.Context) error {
	params := InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities: ClientCapabilities{
			Roots: &RootsCapability{ListChanged: false},
		},
		ClientInfo: ClientInfo{
			Name:    "assistantchat",
			Version: "1.0.0",
		},
	}

	var result InitializeResult
	if err := c.call(ctx, MethodInitialize, params, &result); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	c.logger.Info("MCP server initialized",
		"server", result.ServerInfo.Name,
		"version", result.ServerInfo.Version,
		"protocol", result.ProtocolVersion,
		"transport", c.kind)
	return nil
}

// ListTools returns available tools from this MCP server
func (c *Conn) ListTools(ctx context.Context) ([]Tool, error) {
	var result ListToolsResult
	if err := c.call(ctx, MethodListTools, nil, &result); err != nil {
		return nil, fmt.Errorf("list tools failed: %w", err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, info := range result.Tools {
		tools[i] = Tool{
			Name:        info.Name,
			Description: info.Description,
			InputSchema: info.InputSchema,
			ServerName:  c.name,
		}
	}
	return tools, nil
}

// CallTool invokes a tool with given arguments
func (c *Conn) CallTool(ctx context.Context, toolName string, args map[string]any) (*CallToolResult, error) {
	params := CallToolParams{
		Name:      toolName,
		Arguments: args,
	}

	var result CallToolResult
	if err := c.call(ctx, MethodCallTool, params, &result); err != nil {
		return nil, fmt.Errorf("call tool failed: %w", err)
	}

	c.logger.Info("called tool", "server", c.name, "tool", toolName)
	return &result, nil
}

// Close disconnects from the MCP server
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.tr.close()
	c.logger.Info("closed MCP client", "name", c.name, "transport", c.kind)
	return err
}

// call sends one request and decodes its result; exchanges are serialised
func (c *Conn) call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}

	request := JSONRPCRequest{
		JSONRPC: jsonRPCVersion,
		ID:      int(c.reqID.Add(1)),
		Method:  method,
		Params:  params,
	}

	response, err := c.tr.roundTrip(ctx, request)
	if err != nil {
		return err
	}
	if response.Error != nil {
		return response.Error
	}
	if response.ID != request.ID {
		return fmt.Errorf("response id %d does not match request id %d", response.ID, request.ID)
	}

	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}
