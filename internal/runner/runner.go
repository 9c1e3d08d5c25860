// Package runner submits user messages, starts runs and polls them to completion.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AssistantChat/internal/backend"
)

// ErrPollLimit is returned when a run is still active after the maximum number of checks
var ErrPollLimit = errors.New("run did not finish within the poll limit")

// RunFailedError reports a run that ended in a failure-class status
type RunFailedError struct {
	RunID  string
	Status openai.RunStatus
	Reason string
}

func (e *RunFailedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("run %s ended with status %s: %s", e.RunID, e.Status, e.Reason)
	}
	return fmt.Sprintf("run %s ended with status %s", e.RunID, e.Status)
}

// ToolHandler executes a function tool call requested by a run
type ToolHandler interface {
	HandleToolCall(ctx context.Context, call openai.ToolCall) (string, error)
}

// SleepFunc blocks for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options tunes the poll loop
type Options struct {
	Delay    time.Duration // constant pause between status checks
	MaxPolls int
	Tools    ToolHandler // nil when no function tools are registered
	Sleep    SleepFunc   // defaults to a context-aware timer
}

// Outcome is the last observed state of a polled run
type Outcome struct {
	Run   openai.Run
	Polls int
}

// Runner drives a single run from message submission to reply
type Runner struct {
	api    backend.API
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
	polls  metric.Int64Counter
}

// New creates a new Runner
func New(api backend.API, opts Options, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Runner, error) {
	if opts.MaxPolls <= 0 {
		return nil, fmt.Errorf("max polls must be positive, got %d", opts.MaxPolls)
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}

	polls, err := meter.Int64Counter(
		"assistant.run.polls",
		metric.WithDescription("Run status checks"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create poll counter: %w", err)
	}

	return &Runner{
		api:    api,
		opts:   opts,
		logger: logger,
		tracer: tracer,
		meter:  meter,
		polls:  polls,
	}, nil
}

// Submit appends a user message to the thread
func (r *Runner) Submit(ctx context.Context, threadID, content string) (openai.Message, error) {
	msg, err := r.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return openai.Message{}, fmt.Errorf("failed to submit message: %w", err)
	}
	r.logger.Info("submitted message", "thread_id", threadID, "message_id", msg.ID)
	return msg, nil
}

// Start creates a run of assistantID on threadID
func (r *Runner) Start(ctx context.Context, threadID, assistantID, instructions string) (openai.Run, error) {
	run, err := r.api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  assistantID,
		Instructions: instructions,
	})
	if err != nil {
		return openai.Run{}, fmt.Errorf("failed to create run: %w", err)
	}
	r.logger.Info("created run", "thread_id", threadID, "run_id", run.ID, "status", run.Status)
	return run, nil
}

// Poll checks the run until it reaches a terminal status. A completed run
// returns a nil error; failure-class statuses return *RunFailedError.
func (r *Runner) Poll(ctx context.Context, threadID, runID string) (Outcome, error) {
	ctx, span := r.tracer.Start(ctx, "run.poll", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("run.id", runID),
	))
	defer span.End()

	out, err := r.poll(ctx, threadID, runID)
	span.SetAttributes(
		attribute.Int("run.polls", out.Polls),
		attribute.String("run.status", string(out.Run.Status)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

func (r *Runner) poll(ctx context.Context, threadID, runID string) (Outcome, error) {
	var out Outcome
	for {
		if out.Polls >= r.opts.MaxPolls {
			return out, fmt.Errorf("%w: %d checks of run %s", ErrPollLimit, out.Polls, runID)
		}

		run, err := r.api.RetrieveRun(ctx, threadID, runID)
		out.Polls++
		if err != nil {
			return out, fmt.Errorf("failed to retrieve run %s: %w", runID, err)
		}
		out.Run = run
		r.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(run.Status))))

		switch {
		case run.Status == openai.RunStatusCompleted:
			r.logger.Info("run completed", "run_id", runID, "polls", out.Polls)
			r.recordUsage(ctx, run.Usage)
			return out, nil

		case IsFailure(run.Status):
			r.logger.Warn("run ended without completing", "run_id", runID, "status", run.Status)
			return out, &RunFailedError{RunID: runID, Status: run.Status, Reason: lastError(run)}

		case run.Status == openai.RunStatusRequiresAction:
			if err := r.handleRequiredAction(ctx, run); err != nil {
				return out, err
			}

		default:
			r.logger.Info("run is not completed yet", "run_id", runID, "status", run.Status, "poll", out.Polls)
		}

		if err := r.opts.Sleep(ctx, r.opts.Delay); err != nil {
			return out, fmt.Errorf("polling run %s interrupted: %w", runID, err)
		}
	}
}

// handleRequiredAction runs the requested tool calls and submits their outputs
func (r *Runner) handleRequiredAction(ctx context.Context, run openai.Run) error {
	if r.opts.Tools == nil || run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		if _, err := r.api.CancelRun(ctx, run.ThreadID, run.ID); err != nil {
			r.logger.Warn("failed to cancel run", "run_id", run.ID, "error", err)
		}
		return &RunFailedError{
			RunID:  run.ID,
			Status: run.Status,
			Reason: "run requested tool outputs but no tool handler is configured",
		}
	}

	calls := run.RequiredAction.SubmitToolOutputs.ToolCalls
	outputs := make([]openai.ToolOutput, 0, len(calls))
	for _, call := range calls {
		r.logger.Info("invoking tool", "tool", call.Function.Name, "call_id", call.ID)

		output, err := r.opts.Tools.HandleToolCall(ctx, call)
		if err != nil {
			r.logger.Error("tool invocation failed", "tool", call.Function.Name, "error", err)
			output = fmt.Sprintf("Error: %v", err)
		}
		outputs = append(outputs, openai.ToolOutput{ToolCallID: call.ID, Output: output})
	}

	if _, err := r.api.SubmitToolOutputs(ctx, run.ThreadID, run.ID, openai.SubmitToolOutputsRequest{
		ToolOutputs: outputs,
	}); err != nil {
		return fmt.Errorf("failed to submit tool outputs: %w", err)
	}
	r.logger.Info("submitted tool outputs", "run_id", run.ID, "count", len(outputs))
	return nil
}

// Reply returns the text of the assistant messages the run produced, oldest first
func (r *Runner) Reply(ctx context.Context, threadID, runID string) (string, error) {
	order := "asc"
	limit := 100
	list, err := r.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}

	var parts []string
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		if msg.RunID != nil && *msg.RunID != runID {
			continue
		}
		if text := backend.MessageText(msg); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// recordUsage records token usage metrics reported on a completed run
func (r *Runner) recordUsage(ctx context.Context, usage openai.Usage) {
	values := map[string]int{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
		"total_tokens":      usage.TotalTokens,
	}
	for key, value := range values {
		if value == 0 {
			continue
		}
		counter, err := r.meter.Int64Counter(
			"llm.usage."+key,
			metric.WithDescription("LLM usage metric: "+key),
		)
		if err != nil {
			r.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, int64(value))
	}
}

// IsFailure reports whether status ends a run without a reply
func IsFailure(status openai.RunStatus) bool {
	switch status {
	case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired, openai.RunStatusIncomplete:
		return true
	}
	return false
}

// IsTerminal reports whether a run with status will not change any more
func IsTerminal(status openai.RunStatus) bool {
	return status == openai.RunStatusCompleted || IsFailure(status)
}

func lastError(run openai.Run) string {
	if run.LastError == nil {
		return ""
	}
	if run.LastError.Code != "" {
		return fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
	}
	return run.LastError.Message
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
