package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Registry manages MCP clients and the tools they expose to the assistant
type Registry struct {
	clients map[string]Client
	tools   []Tool
	logger  *slog.Logger
	mu      sync.RWMutex
}

// NewRegistry creates a new client registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Connect starts every configured server, skipping the ones that fail,
// and loads their tools
func Connect(ctx context.Context, localServers, remoteServers []string, logger *slog.Logger) *Registry {
	r := NewRegistry(logger)

	for _, path := range localServers {
		client, err := NewStdioClient(path, path, logger)
		if err != nil {
			logger.Warn("failed to create stdio MCP client", "script", path, "error", err)
			continue
		}
		r.initialize(ctx, path, client)
	}

	for _, serverURL := range remoteServers {
		var client Client
		var err error

		if strings.HasPrefix(serverURL, "ws://") || strings.HasPrefix(serverURL, "wss://") {
			client, err = NewWebSocketClient(ctx, serverURL, serverURL, logger)
		} else {
			client, err = NewHTTPClient(serverURL, serverURL, logger)
		}
		if err != nil {
			logger.Warn("failed to create remote MCP client", "url", serverURL, "error", err)
			continue
		}
		r.initialize(ctx, serverURL, client)
	}

	r.Refresh(ctx)
	logger.Info("MCP initialized", "servers", r.Count(), "tools", len(r.Tools()))
	return r
}

func (r *Registry) initialize(ctx context.Context, name string, client Client) {
	if err := client.Initialize(ctx); err != nil {
		r.logger.Warn("failed to initialize MCP client", "server", name, "error", err)
		client.Close()
		return
	}
	r.Register(name, client)
	r.logger.Info("registered MCP server", "server", name)
}

// Register adds a client to the registry
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
}

// Get retrieves a client by name
func (r *Registry) Get(name string) (Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	return client, ok
}

// All returns all registered clients ordered by name
func (r *Registry) All() []Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)

	clients := make([]Client, 0, len(names))
	for _, name := range names {
		clients = append(clients, r.clients[name])
	}
	return clients
}

// Count returns the number of registered clients
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Close closes all registered clients
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, client := range r.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close client %s: %w", name, err)
		}
	}
	return firstErr
}

// Refresh reloads the tool list from every server. A server that fails to
// answer contributes no tools.
func (r *Registry) Refresh(ctx context.Context) {
	var tools []Tool
	for _, client := range r.All() {
		listed, err := client.ListTools(ctx)
		if err != nil {
			r.logger.Warn("failed to list tools from MCP server", "server", client.Name(), "error", err)
			continue
		}
		tools = append(tools, listed...)
		r.logger.Info("loaded tools from MCP server", "server", client.Name(), "count", len(listed))
	}

	r.mu.Lock()
	r.tools = tools
	r.mu.Unlock()
}

// Tools returns the tools loaded by the last Refresh
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Tool(nil), r.tools...)
}

// AssistantTools converts the MCP tools to assistant function tools
func (r *Registry) AssistantTools() []openai.AssistantTool {
	tools := r.Tools()
	out := make([]openai.AssistantTool, len(tools))
	for i, tool := range tools {
		params := tool.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		}
	}
	return out
}

// HandleToolCall runs a function tool call on the server that provides it
func (r *Registry) HandleToolCall(ctx context.Context, call openai.ToolCall) (string, error) {
	var target Client
	for _, tool := range r.Tools() {
		if tool.Name == call.Function.Name {
			client, ok := r.Get(tool.ServerName)
			if !ok {
				return "", fmt.Errorf("server %s not found for tool %s", tool.ServerName, tool.Name)
			}
			target = client
			break
		}
	}
	if target == nil {
		return "", fmt.Errorf("tool %s not found", call.Function.Name)
	}

	args := map[string]any{}
	if call.Function.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "", fmt.Errorf("invalid arguments for tool %s: %w", call.Function.Name, err)
		}
	}

	result, err := target.CallTool(ctx, call.Function.Name, args)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", call.Function.Name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", call.Function.Name, result.Text())
	}

	r.logger.Info("invoked MCP tool", "tool", call.Function.Name, "server", target.Name())
	return result.Text(), nil
}
