// Package app wires the session file, the provisioner, the run poller and the
// optional history and tool bridge into the CLI operations.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"AssistantChat/internal/backend"
	"AssistantChat/internal/config"
	"AssistantChat/internal/history"
	"AssistantChat/internal/mcp"
	"AssistantChat/internal/provision"
	"AssistantChat/internal/runner"
	"AssistantChat/internal/session"
)

var (
	// ErrNoThread is returned when an operation needs a stored thread id
	ErrNoThread = errors.New("no thread stored in the session file")
	// ErrHistoryDisabled is returned by History when no database is open
	ErrHistoryDisabled = errors.New("run history is disabled")
)

// Deps are the collaborators of an App
type Deps struct {
	Config     config.Config
	State      *session.State
	API        backend.API
	Definition config.AssistantDefinition
	Tools      *mcp.Registry  // nil when the tool bridge is disabled
	History    *history.Store // nil when history is disabled
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Meter      metric.Meter
	Out        io.Writer
	Sleep      runner.SleepFunc // nil selects the real timer
}

// App represents the main application
type App struct {
	state   *session.State
	api     backend.API
	prov    *provision.Provisioner
	runner  *runner.Runner
	history *history.Store
	tools   *mcp.Registry
	logger  *slog.Logger
	tracer  trace.Tracer
	out     io.Writer
	now     func() time.Time
}

// New creates a new App
func New(d Deps) (*App, error) {
	if d.State == nil {
		return nil, fmt.Errorf("session state is required")
	}

	var handler runner.ToolHandler
	var extraTools []openai.AssistantTool
	if d.Tools != nil {
		handler = d.Tools
		extraTools = d.Tools.AssistantTools()
	}

	run, err := runner.New(d.API, runner.Options{
		Delay:    d.State.PollDelay(),
		MaxPolls: d.Config.MaxPolls,
		Tools:    handler,
		Sleep:    d.Sleep,
	}, d.Logger, d.Tracer, d.Meter)
	if err != nil {
		return nil, err
	}

	def := d.Definition.WithOverrides(d.State)

	return &App{
		state:   d.State,
		api:     d.API,
		prov:    provision.New(d.API, def, extraTools, d.Logger, d.Tracer),
		runner:  run,
		history: d.History,
		tools:   d.Tools,
		logger:  d.Logger,
		tracer:  d.Tracer,
		out:     d.Out,
		now:     time.Now,
	}, nil
}

// SelectQuestion resolves the ask argument: an integer indexes questions,
// anything else is the question itself, and no argument selects the default.
func SelectQuestion(questions []string, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return config.DefaultQuestion, nil
	}
	if idx, err := strconv.Atoi(arg); err == nil {
		if idx < 0 || idx >= len(questions) {
			return "", fmt.Errorf("question index %d out of range, the session file has %d questions", idx, len(questions))
		}
		return questions[idx], nil
	}
	return arg, nil
}

// Ask provisions the assistant and thread, posts the question, runs the
// assistant and prints its reply. A run ending in a failure status is
// reported on the output and returned as *runner.RunFailedError.
func (a *App) Ask(ctx context.Context, arg string) error {
	question, err := SelectQuestion(a.state.Questions, arg)
	if err != nil {
		return err
	}

	invocationID := uuid.NewString()
	logger := a.logger.With("invocation_id", invocationID)

	ctx, span := a.tracer.Start(ctx, "ask", trace.WithAttributes(
		attribute.String("invocation.id", invocationID),
	))
	defer span.End()

	err = a.ask(ctx, logger, invocationID, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (a *App) ask(ctx context.Context, logger *slog.Logger, invocationID, question string) error {
	started := a.now()

	res, err := a.prov.Ensure(ctx, a.state)
	if err != nil {
		return fmt.Errorf("failed to provision assistant: %w", err)
	}
	if err := a.state.Save(); err != nil {
		return err
	}
	logger.Info("using assistant and thread",
		"assistant_id", res.Assistant.ID,
		"thread_id", res.Thread.ID,
		"assistant_created", res.CreatedAssistant,
		"thread_created", res.CreatedThread)

	threadID := res.Thread.ID
	runID, resumed, err := a.storedRun(ctx, logger, threadID)
	if err != nil {
		return err
	}

	if resumed {
		logger.Info("resuming unfinished run, question not sent", "run_id", runID)
		question = ""
	} else {
		if _, err := a.runner.Submit(ctx, threadID, question); err != nil {
			return err
		}
		run, err := a.runner.Start(ctx, threadID, res.Assistant.ID, config.RunInstructions(a.state.UserName))
		if err != nil {
			return err
		}
		runID = run.ID
		a.state.Run = runID
		if err := a.state.Save(); err != nil {
			return err
		}
	}

	outcome, pollErr := a.runner.Poll(ctx, threadID, runID)

	var failed *runner.RunFailedError
	if pollErr != nil && !errors.As(pollErr, &failed) {
		// the run may still finish; keep its id for the next invocation
		logger.Warn("run not finished", "run_id", runID, "polls", outcome.Polls, "error", pollErr)
		return pollErr
	}

	a.state.Run = ""
	if err := a.state.Save(); err != nil {
		return err
	}

	rec := history.Record{
		InvocationID: invocationID,
		AssistantID:  res.Assistant.ID,
		ThreadID:     threadID,
		RunID:        runID,
		Question:     question,
		Status:       string(outcome.Run.Status),
		Polls:        outcome.Polls,
		StartedAt:    started,
	}

	if failed != nil {
		fmt.Fprintf(a.out, "Run ended with status: %s\n", failed.Status)
		if failed.Reason != "" {
			fmt.Fprintf(a.out, "Last error: %s\n", failed.Reason)
		}
		a.record(ctx, logger, rec)
		return failed
	}

	reply, err := a.runner.Reply(ctx, threadID, runID)
	if err != nil {
		return err
	}
	if reply == "" {
		logger.Warn("run completed without an assistant message", "run_id", runID)
	}
	fmt.Fprintf(a.out, "Assistant: %s\n", reply)

	rec.Reply = reply
	a.record(ctx, logger, rec)
	return nil
}

// storedRun decides whether the run id in the session file can be resumed
func (a *App) storedRun(ctx context.Context, logger *slog.Logger, threadID string) (string, bool, error) {
	if a.state.Run == "" {
		return "", false, nil
	}

	run, err := a.api.RetrieveRun(ctx, threadID, a.state.Run)
	switch backend.Classify(err) {
	case backend.NotFound:
		logger.Warn("stored run not found, starting a new one", "run_id", a.state.Run)
	case backend.TransientError:
		return "", false, fmt.Errorf("failed to retrieve stored run %s: %w", a.state.Run, err)
	case backend.Found:
		if !runner.IsTerminal(run.Status) {
			return run.ID, true, nil
		}
		logger.Info("stored run already finished", "run_id", run.ID, "status", run.Status)
	}

	a.state.Run = ""
	return "", false, nil
}

// record stores a history entry; failures are logged, not returned
func (a *App) record(ctx context.Context, logger *slog.Logger, rec history.Record) {
	if a.history == nil {
		return
	}
	rec.FinishedAt = a.now()
	if err := a.history.Add(ctx, rec); err != nil {
		logger.Warn("failed to record run history", "run_id", rec.RunID, "error", err)
	}
}

// Messages prints every message of the stored thread, oldest first
func (a *App) Messages(ctx context.Context) error {
	if a.state.Thread == "" {
		return ErrNoThread
	}

	order := "asc"
	limit := 100
	var after *string
	for {
		list, err := a.api.ListMessage(ctx, a.state.Thread, &limit, &order, after, nil, nil)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		for _, msg := range list.Messages {
			fmt.Fprintln(a.out, backend.FormatMessage(msg))
		}
		if !list.HasMore || list.LastID == nil {
			return nil
		}
		after = list.LastID
	}
}

// Delete removes the assistant id, or the stored assistant when id is empty.
// Deleting the stored assistant also forgets its thread and run.
func (a *App) Delete(ctx context.Context, id string) error {
	target := id
	if target == "" {
		target = a.state.Assistant
	}
	if target == "" {
		fmt.Fprintln(a.out, "No assistant to delete.")
		return nil
	}

	_, err := a.api.DeleteAssistant(ctx, target)
	switch backend.Classify(err) {
	case backend.Found:
		fmt.Fprintf(a.out, "Deleted assistant %s\n", target)
		a.logger.Info("deleted assistant", "assistant_id", target)
	case backend.NotFound:
		fmt.Fprintf(a.out, "Assistant %s does not exist\n", target)
		a.logger.Warn("assistant to delete not found", "assistant_id", target)
	default:
		return fmt.Errorf("failed to delete assistant %s: %w", target, err)
	}

	if target == a.state.Assistant {
		a.state.ClearAssistant()
		return a.state.Save()
	}
	return nil
}

// List prints up to limit assistants in creation order
func (a *App) List(ctx context.Context, limit int) error {
	order := "asc"
	list, err := a.api.ListAssistants(ctx, &limit, &order, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to list assistants: %w", err)
	}

	for _, assistant := range list.Assistants {
		fmt.Fprintln(a.out, FormatAssistant(assistant))
	}
	return nil
}

// FormatAssistant renders one line of the assistant listing
func FormatAssistant(assistant openai.Assistant) string {
	name := ""
	if assistant.Name != nil {
		name = *assistant.Name
	}

	tools := make([]string, len(assistant.Tools))
	for i, tool := range assistant.Tools {
		tools[i] = string(tool.Type)
	}

	created := time.Unix(assistant.CreatedAt, 0).UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s\t%s\t[%s]\t%s", assistant.ID, name, strings.Join(tools, ","), created)
}

// History prints the most recent runs recorded by this CLI
func (a *App) History(ctx context.Context, limit int) error {
	if a.history == nil {
		return ErrHistoryDisabled
	}

	records, err := a.history.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No runs recorded.")
		return nil
	}

	for _, rec := range records {
		question := rec.Question
		if question == "" {
			question = "(resumed)"
		}
		fmt.Fprintf(a.out, "%s\t%s\t%s\tpolls=%d\t%s\n",
			rec.StartedAt.Local().Format(time.DateTime), rec.RunID, rec.Status, rec.Polls, question)
	}
	return nil
}

// Tools prints the connected MCP servers and the tools registered with the assistant
func (a *App) Tools(ctx context.Context, reload bool) error {
	if a.tools == nil {
		fmt.Fprintln(a.out, "MCP is not enabled. Use --mcp-enabled flag to enable.")
		return nil
	}
	if reload {
		a.tools.Refresh(ctx)
	}

	clients := a.tools.All()
	if len(clients) == 0 {
		fmt.Fprintln(a.out, "No MCP servers connected.")
		return nil
	}

	fmt.Fprintln(a.out, "Connected MCP Servers:")
	for i, client := range clients {
		fmt.Fprintf(a.out, "%d. %s\n", i+1, client.Name())
	}

	tools := a.tools.Tools()
	fmt.Fprintln(a.out, "\nAvailable MCP Tools:")
	for i, tool := range tools {
		fmt.Fprintf(a.out, "%d. %s (%s)\n", i+1, tool.Name, tool.ServerName)
		if tool.Description != "" {
			fmt.Fprintf(a.out, "   %s\n", tool.Description)
		}
	}
	fmt.Fprintf(a.out, "\nTotal: %d servers, %d tools\n", len(clients), len(tools))
	return nil
}
