package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
)

// stdioTransport speaks newline-delimited JSON-RPC with a child process
type stdioTransport struct {
	name    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	logger  *slog.Logger
}

// NewStdioClient starts a local MCP server. Python scripts are run with python3,
// anything else is executed directly.
func NewStdioClient(name, path string, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	var cmd *exec.Cmd
	if filepath.Ext(path) == ".py" {
		cmd = exec.Command("python3", path)
	} else {
		cmd = exec.Command(path)
	}
	return startStdio(name, cmd, logger)
}

func startStdio(name string, cmd *exec.Cmd, logger *slog.Logger) (*Conn, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start MCP server process: %w", err)
	}

	tr := &stdioTransport{
		name:    name,
		cmd:     cmd,
		stdin:   stdin,
		scanner: bufio.NewScanner(stdout),
		logger:  logger,
	}
	tr.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	go tr.logStderr(stderr)

	logger.Info("started MCP stdio client", "name", name, "command", cmd.Path)
	return newConn(name, "stdio", tr, logger), nil
}

func (t *stdioTransport) roundTrip(ctx context.Context, req JSONRPCRequest) (*JSONRPCResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if _, err := t.stdin.Write(append(requestJSON, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	// Servers may emit notifications; skip lines until our response arrives
	for t.scanner.Scan() {
		var resp JSONRPCResponse
		if err := json.Unmarshal(t.scanner.Bytes(), &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
		if resp.ID == 0 && resp.Error == nil && len(resp.Result) == 0 {
			continue
		}
		return &resp, nil
	}
	if err := t.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return nil, fmt.Errorf("EOF from MCP server")
}

func (t *stdioTransport) close() error {
	t.stdin.Close()

	if t.cmd.Process != nil {
		if err := t.cmd.Process.Kill(); err != nil {
			t.logger.Warn("failed to kill MCP server process", "error", err)
		}
		_ = t.cmd.Wait()
	}
	return nil
}

// logStderr forwards the server's stderr to the log
func (t *stdioTransport) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.logger.Warn("MCP server stderr", "server", t.name, "message", scanner.Text())
	}
}
