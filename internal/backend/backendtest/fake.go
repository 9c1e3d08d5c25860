// Package backendtest provides an in-memory Assistants API for tests.
package backendtest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// NotFound returns the error the SDK produces for a 404 response
func NotFound(what string) error {
	return &openai.APIError{
		HTTPStatusCode: http.StatusNotFound,
		Message:        fmt.Sprintf("No %s found", what),
		Type:           "invalid_request_error",
	}
}

// ServerError returns the error the SDK produces for a 500 response
func ServerError() error {
	return &openai.APIError{
		HTTPStatusCode: http.StatusInternalServerError,
		Message:        "The server had an error while processing your request.",
		Type:           "server_error",
	}
}

// Fake is a scripted, in-memory implementation of backend.API
type Fake struct {
	mu sync.Mutex

	// Script is the sequence of statuses returned by successive RetrieveRun
	// calls. The last entry repeats once the script is exhausted.
	Script []openai.RunStatus
	// Reply is posted as an assistant message when a run first reports completed
	Reply string
	// RequiredAction is attached to runs reporting requires_action
	RequiredAction *openai.RunRequiredAction
	// LastError is attached to runs reporting a failure status
	LastError *openai.RunLastError
	// Errors injects a failure into the named method
	Errors map[string]error

	Assistants map[string]openai.Assistant
	Threads    map[string]openai.Thread
	Messages   map[string][]openai.Message
	Runs       map[string]openai.Run

	ToolOutputs []openai.ToolOutput

	calls   []string
	polls   int
	nextID  int
	replied map[string]bool
}

// New returns an empty fake
func New() *Fake {
	return &Fake{
		Errors:     map[string]error{},
		Assistants: map[string]openai.Assistant{},
		Threads:    map[string]openai.Thread{},
		Messages:   map[string][]openai.Message{},
		Runs:       map[string]openai.Run{},
		replied:    map[string]bool{},
	}
}

// AddAssistant stores an assistant as if it had been created earlier
func (f *Fake) AddAssistant(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := "existing"
	f.Assistants[id] = openai.Assistant{ID: id, Name: &name}
}

// AddThread stores a thread as if it had been created earlier
func (f *Fake) AddThread(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Threads[id] = openai.Thread{ID: id}
}

// AddRun stores a run with the given status
func (f *Fake) AddRun(threadID, runID string, status openai.RunStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Runs[runID] = openai.Run{ID: runID, ThreadID: threadID, Status: status}
}

// AddMessage appends a message to a thread
func (f *Fake) AddMessage(threadID, role, text, runID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appendMessage(threadID, role, text, runID)
}

// Calls returns the recorded method names in call order
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times method was called
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *Fake) record(method string) error {
	f.calls = append(f.calls, method)
	return f.Errors[method]
}

func (f *Fake) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s_%d", prefix, f.nextID)
}

func (f *Fake) appendMessage(threadID, role, text, runID string) openai.Message {
	msg := openai.Message{
		ID:        f.newID("msg"),
		Object:    "thread.message",
		CreatedAt: f.nextID,
		ThreadID:  threadID,
		Role:      role,
		Content: []openai.MessageContent{{
			Type: "text",
			Text: &openai.MessageText{Value: text},
		}},
	}
	if runID != "" {
		id := runID
		msg.RunID = &id
	}
	f.Messages[threadID] = append(f.Messages[threadID], msg)
	return msg
}

func (f *Fake) CreateAssistant(_ context.Context, req openai.AssistantRequest) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateAssistant"); err != nil {
		return openai.Assistant{}, err
	}
	a := openai.Assistant{
		ID:           f.newID("asst"),
		Object:       "assistant",
		CreatedAt:    int64(f.nextID),
		Name:         req.Name,
		Instructions: req.Instructions,
		Model:        req.Model,
		Tools:        req.Tools,
	}
	f.Assistants[a.ID] = a
	return a, nil
}

func (f *Fake) RetrieveAssistant(_ context.Context, assistantID string) (openai.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveAssistant"); err != nil {
		return openai.Assistant{}, err
	}
	a, ok := f.Assistants[assistantID]
	if !ok {
		return openai.Assistant{}, NotFound("assistant")
	}
	return a, nil
}

func (f *Fake) ListAssistants(_ context.Context, limit *int, order, _, _ *string) (openai.AssistantsList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListAssistants"); err != nil {
		return openai.AssistantsList{}, err
	}
	list := make([]openai.Assistant, 0, len(f.Assistants))
	for _, a := range f.Assistants {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	if order != nil && *order == "desc" {
		sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	}
	if limit != nil && len(list) > *limit {
		list = list[:*limit]
	}
	return openai.AssistantsList{Assistants: list}, nil
}

func (f *Fake) DeleteAssistant(_ context.Context, assistantID string) (openai.AssistantDeleteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteAssistant"); err != nil {
		return openai.AssistantDeleteResponse{}, err
	}
	if _, ok := f.Assistants[assistantID]; !ok {
		return openai.AssistantDeleteResponse{}, NotFound("assistant")
	}
	delete(f.Assistants, assistantID)
	return openai.AssistantDeleteResponse{ID: assistantID, Object: "assistant.deleted", Deleted: true}, nil
}

func (f *Fake) CreateThread(_ context.Context, _ openai.ThreadRequest) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThread"); err != nil {
		return openai.Thread{}, err
	}
	th := openai.Thread{ID: f.newID("thread"), Object: "thread"}
	f.Threads[th.ID] = th
	return th, nil
}

func (f *Fake) RetrieveThread(_ context.Context, threadID string) (openai.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveThread"); err != nil {
		return openai.Thread{}, err
	}
	th, ok := f.Threads[threadID]
	if !ok {
		return openai.Thread{}, NotFound("thread")
	}
	return th, nil
}

func (f *Fake) CreateMessage(_ context.Context, threadID string, req openai.MessageRequest) (openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateMessage"); err != nil {
		return openai.Message{}, err
	}
	if _, ok := f.Threads[threadID]; !ok {
		return openai.Message{}, NotFound("thread")
	}
	return f.appendMessage(threadID, req.Role, req.Content, ""), nil
}

func (f *Fake) ListMessage(_ context.Context, threadID string, limit *int, order, _, _, runID *string) (openai.MessagesList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListMessage"); err != nil {
		return openai.MessagesList{}, err
	}
	var out []openai.Message
	for _, msg := range f.Messages[threadID] {
		if runID != nil && (msg.RunID == nil || *msg.RunID != *runID) {
			continue
		}
		out = append(out, msg)
	}
	if order == nil || *order == "desc" {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if limit != nil && len(out) > *limit {
		out = out[:*limit]
	}
	return openai.MessagesList{Messages: out}, nil
}

func (f *Fake) CreateRun(_ context.Context, threadID string, req openai.RunRequest) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRun"); err != nil {
		return openai.Run{}, err
	}
	if _, ok := f.Threads[threadID]; !ok {
		return openai.Run{}, NotFound("thread")
	}
	run := openai.Run{
		ID:           f.newID("run"),
		Object:       "thread.run",
		ThreadID:     threadID,
		AssistantID:  req.AssistantID,
		Instructions: req.Instructions,
		Status:       openai.RunStatusQueued,
	}
	f.Runs[run.ID] = run
	return run, nil
}

func (f *Fake) RetrieveRun(_ context.Context, threadID, runID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveRun"); err != nil {
		return openai.Run{}, err
	}
	run, ok := f.Runs[runID]
	if !ok || run.ThreadID != threadID {
		return openai.Run{}, NotFound("run")
	}

	if len(f.Script) > 0 {
		idx := f.polls
		if idx >= len(f.Script) {
			idx = len(f.Script) - 1
		}
		run.Status = f.Script[idx]
	}
	f.polls++

	run.RequiredAction = nil
	run.LastError = nil
	switch run.Status {
	case openai.RunStatusRequiresAction:
		run.RequiredAction = f.RequiredAction
	case openai.RunStatusFailed, openai.RunStatusExpired, openai.RunStatusCancelled, openai.RunStatusIncomplete:
		run.LastError = f.LastError
	case openai.RunStatusCompleted:
		if f.Reply != "" && !f.replied[runID] {
			f.appendMessage(threadID, openai.ChatMessageRoleAssistant, f.Reply, runID)
			f.replied[runID] = true
		}
	}
	f.Runs[runID] = run
	return run, nil
}

func (f *Fake) CancelRun(_ context.Context, threadID, runID string) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CancelRun"); err != nil {
		return openai.Run{}, err
	}
	run, ok := f.Runs[runID]
	if !ok || run.ThreadID != threadID {
		return openai.Run{}, NotFound("run")
	}
	run.Status = openai.RunStatusCancelling
	f.Runs[runID] = run
	return run, nil
}

func (f *Fake) SubmitToolOutputs(_ context.Context, threadID, runID string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SubmitToolOutputs"); err != nil {
		return openai.Run{}, err
	}
	run, ok := f.Runs[runID]
	if !ok || run.ThreadID != threadID {
		return openai.Run{}, NotFound("run")
	}
	f.ToolOutputs = append(f.ToolOutputs, req.ToolOutputs...)
	run.Status = openai.RunStatusQueued
	f.Runs[runID] = run
	return run, nil
}
