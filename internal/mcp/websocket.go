package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport exchanges JSON-RPC frames over a single WebSocket connection
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketClient dials a remote MCP server over WebSocket
func NewWebSocketClient(ctx context.Context, name, url string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	logger.Info("created MCP WebSocket client", "name", name, "url", url)
	return newConn(name, "websocket", &wsTransport{conn: conn}, logger), nil
}

func (t *wsTransport) roundTrip(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := t.conn.SetWriteDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}

	if err := t.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	var resp JSONRPCResponse
	if err := t.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

func (t *wsTransport) close() error {
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return t.conn.Close()
}
