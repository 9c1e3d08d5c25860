package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAssistantsAPI serves the subset of the Assistants API the CLI uses.
// Runs report runStatus on the first retrieval.
type fakeAssistantsAPI struct {
	mu        sync.Mutex
	runStatus string
	requests  []string
}

func (f *fakeAssistantsAPI) handler() http.Handler {
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	}

	mux.HandleFunc("GET /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id": "asst_1", "object": "assistant", "created_at": 1700000000,
				"name": "Math Tutor", "model": "gpt-4-1106-preview",
				"tools": []map[string]any{{"type": "code_interpreter"}},
			}},
			"has_more": false,
		})
	})
	mux.HandleFunc("POST /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": "asst_1", "object": "assistant", "name": "Math Tutor", "model": "gpt-4-1106-preview"})
	})
	mux.HandleFunc("DELETE /v1/assistants/{id}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": r.PathValue("id"), "object": "assistant.deleted", "deleted": true})
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": "thread_1", "object": "thread"})
	})
	mux.HandleFunc("POST /v1/threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": "msg_1", "object": "thread.message", "thread_id": r.PathValue("thread"), "role": "user"})
	})
	mux.HandleFunc("GET /v1/threads/{thread}/messages", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{
			"object": "list",
			"data": []map[string]any{
				textMessage("msg_1", "user", "What is 2+2?", ""),
				textMessage("msg_2", "assistant", "4", "run_1"),
			},
			"has_more": false,
		})
	})
	mux.HandleFunc("POST /v1/threads/{thread}/runs", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, map[string]any{"id": "run_1", "object": "thread.run", "thread_id": r.PathValue("thread"), "status": "queued"})
	})
	mux.HandleFunc("GET /v1/threads/{thread}/runs/{run}", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		run := map[string]any{"id": r.PathValue("run"), "object": "thread.run", "thread_id": r.PathValue("thread"), "status": f.runStatus}
		if f.runStatus == "failed" {
			run["last_error"] = map[string]any{"code": "server_error", "message": "boom"}
		}
		writeJSON(w, run)
	})
	return mux
}

func (f *fakeAssistantsAPI) count(request string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r == request {
			n++
		}
	}
	return n
}

func textMessage(id, role, text, runID string) map[string]any {
	msg := map[string]any{
		"id": id, "object": "thread.message", "thread_id": "thread_1", "role": role,
		"content": []map[string]any{{"type": "text", "text": map[string]any{"value": text, "annotations": []any{}}}},
	}
	if runID != "" {
		msg["run_id"] = runID
	}
	return msg
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// runCLI executes the command tree against api with files under dir
func runCLI(t *testing.T, api *fakeAssistantsAPI, dir string, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", srv.URL+"/v1")

	out := &bytes.Buffer{}
	root := newRootCmd(viper.New())
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append(args,
		"--session-file", filepath.Join(dir, "assistant.json"),
		"--log-dir", filepath.Join(dir, "logs"),
		"--db-path", filepath.Join(dir, "assistant.db"),
	))
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd(viper.New())

	names := []string{}
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"ask", "messages", "delete", "list", "history", "tools"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_FlagsBindToViper(t *testing.T) {
	v := viper.New()
	root := newRootCmd(v)
	require.NoError(t, root.PersistentFlags().Parse([]string{"--max-polls", "7", "--mcp-remote", "ws://a,http://b"}))

	assert.Equal(t, 7, v.GetInt("max_polls"))
	assert.Equal(t, []string{"ws://a", "http://b"}, v.GetStringSlice("mcp_remote"))
	assert.Equal(t, "assistant.json", v.GetString("session_file"))
}

func TestAsk_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	api := &fakeAssistantsAPI{runStatus: "completed"}

	out, err := runCLI(t, api, dir, "ask", "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "Assistant: 4\n", out)
	assert.Equal(t, 1, api.count("POST /v1/assistants"))
	assert.Equal(t, 1, api.count("POST /v1/threads"))

	data, err := os.ReadFile(filepath.Join(dir, "assistant.json"))
	require.NoError(t, err)
	var saved map[string]any
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "asst_1", saved["assistant"])
	assert.Equal(t, "thread_1", saved["thread"])
	assert.NotContains(t, saved, "run")

	out, err = runCLI(t, api, dir, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "run_1")
	assert.Contains(t, out, "What is 2+2?")
}

func TestAsk_FailedRunExitsWithError(t *testing.T) {
	api := &fakeAssistantsAPI{runStatus: "failed"}

	out, err := runCLI(t, api, t.TempDir(), "ask")
	require.Error(t, err)
	assert.Contains(t, out, "Run ended with status: failed")
	assert.Zero(t, api.count("GET /v1/threads/thread_1/messages"))
}

func TestList(t *testing.T) {
	out, err := runCLI(t, &fakeAssistantsAPI{}, t.TempDir(), "list")
	require.NoError(t, err)
	assert.Equal(t, "asst_1\tMath Tutor\t[code_interpreter]\t2023-11-14T22:13:20Z\n", out)
}

func TestMessages_RequiresThread(t *testing.T) {
	_, err := runCLI(t, &fakeAssistantsAPI{}, t.TempDir(), "messages")
	assert.ErrorContains(t, err, "no thread")
}

func TestDelete_ClearsSessionFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "assistant.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"assistant":"asst_9","thread":"thread_9","userName":"Jane"}`), 0644))

	api := &fakeAssistantsAPI{}
	out, err := runCLI(t, api, dir, "delete")
	require.NoError(t, err)
	assert.Equal(t, "Deleted assistant asst_9\n", out)
	assert.Equal(t, 1, api.count("DELETE /v1/assistants/asst_9"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"userName":"Jane"}`, string(data))
}

func TestTools_Disabled(t *testing.T) {
	out, err := runCLI(t, &fakeAssistantsAPI{}, t.TempDir(), "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "MCP is not enabled")
}
