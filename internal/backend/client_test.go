package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"AssistantChat/internal/backend/backendtest"
)

var _ API = (*backendtest.Fake)(nil)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client, err := NewClient(Options{APIKey: "sk-test", BaseURL: srv.URL + "/v1"},
		logger, tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := NewClient(Options{}, logger, tracenoop.NewTracerProvider().Tracer("test"), metricnoop.NewMeterProvider().Meter("test"))
	assert.Error(t, err)
}

func TestClient_RetrieveAssistant(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/assistants/asst_ok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":     "asst_ok",
			"object": "assistant",
			"name":   "Math Tutor",
			"model":  "gpt-4-1106-preview",
			"tools":  []map[string]any{{"type": "code_interpreter"}},
		})
	})
	mux.HandleFunc("/v1/assistants/asst_gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error": map[string]any{
				"message": "No assistant found with id 'asst_gone'.",
				"type":    "invalid_request_error",
			},
		})
	})
	mux.HandleFunc("/v1/assistants/asst_busy", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	a, err := client.RetrieveAssistant(ctx, "asst_ok")
	require.NoError(t, err)
	assert.Equal(t, "asst_ok", a.ID)
	require.NotNil(t, a.Name)
	assert.Equal(t, "Math Tutor", *a.Name)

	_, err = client.RetrieveAssistant(ctx, "asst_gone")
	require.Error(t, err)
	assert.Equal(t, NotFound, Classify(err))

	_, err = client.RetrieveAssistant(ctx, "asst_busy")
	require.Error(t, err)
	assert.Equal(t, TransientError, Classify(err))
}

func TestClient_CreateRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_1", body["assistant_id"])
		assert.Equal(t, "Please address the user as Ada.", body["instructions"])

		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "run_1",
			"object":       "thread.run",
			"thread_id":    "thread_1",
			"assistant_id": "asst_1",
			"status":       "queued",
		})
	})

	client := newTestClient(t, mux)
	run, err := client.CreateRun(context.Background(), "thread_1", openai.RunRequest{
		AssistantID:  "asst_1",
		Instructions: "Please address the user as Ada.",
	})
	require.NoError(t, err)
	assert.Equal(t, "run_1", run.ID)
	assert.Equal(t, "thread_1", run.ThreadID)
	assert.Equal(t, openai.RunStatusQueued, run.Status)
}

func TestClient_ListMessageFiltersByRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "run_1", r.URL.Query().Get("run_id"))
		assert.Equal(t, "asc", r.URL.Query().Get("order"))

		writeJSON(w, http.StatusOK, map[string]any{
			"object": "list",
			"data": []map[string]any{{
				"id":        "msg_1",
				"object":    "thread.message",
				"thread_id": "thread_1",
				"role":      "assistant",
				"run_id":    "run_1",
				"content": []map[string]any{{
					"type": "text",
					"text": map[string]any{"value": "x = 1", "annotations": []any{}},
				}},
			}},
		})
	})

	client := newTestClient(t, mux)
	order := "asc"
	runID := "run_1"
	list, err := client.ListMessage(context.Background(), "thread_1", nil, &order, nil, nil, &runID)
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "Assistant: x = 1", FormatMessage(list.Messages[0]))
}
