package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// API is the part of the Assistants API the CLI drives
type API interface {
	CreateAssistant(ctx context.Context, req openai.AssistantRequest) (openai.Assistant, error)
	RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error)
	ListAssistants(ctx context.Context, limit *int, order, after, before *string) (openai.AssistantsList, error)
	DeleteAssistant(ctx context.Context, assistantID string) (openai.AssistantDeleteResponse, error)

	CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error)
	RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error)

	CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error)

	CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, req openai.SubmitToolOutputsRequest) (openai.Run, error)
}

// Options configures the remote client
type Options struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client implements API on top of the go-openai SDK, adding a span and a
// duration sample for every call
type Client struct {
	sdk      *openai.Client
	logger   *slog.Logger
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

var _ API = (*Client)(nil)

// NewClient creates a new Assistants API client
func NewClient(opts Options, logger *slog.Logger, tracer trace.Tracer, meter metric.Meter) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	sdkConfig := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		sdkConfig.BaseURL = opts.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	histogram, err := meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Assistants API request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Client{
		sdk:      openai.NewClientWithConfig(sdkConfig),
		logger:   logger,
		tracer:   tracer,
		duration: histogram,
	}, nil
}

// observe opens a span for op and returns the function that closes it
func (c *Client) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := c.tracer.Start(ctx, "openai."+op, trace.WithAttributes(attrs...))
	start := time.Now()

	return ctx, func(err error) {
		elapsed := time.Since(start)
		c.duration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("operation", op)))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Debug("assistants API call failed", "operation", op, "duration_ms", elapsed.Milliseconds(), "error", err)
		} else {
			c.logger.Debug("assistants API call", "operation", op, "duration_ms", elapsed.Milliseconds())
		}
		span.End()
	}
}

func (c *Client) CreateAssistant(ctx context.Context, req openai.AssistantRequest) (openai.Assistant, error) {
	ctx, done := c.observe(ctx, "assistants.create", attribute.String("model", req.Model))
	resp, err := c.sdk.CreateAssistant(ctx, req)
	done(err)
	return resp, err
}

func (c *Client) RetrieveAssistant(ctx context.Context, assistantID string) (openai.Assistant, error) {
	ctx, done := c.observe(ctx, "assistants.retrieve", attribute.String("assistant.id", assistantID))
	resp, err := c.sdk.RetrieveAssistant(ctx, assistantID)
	done(err)
	return resp, err
}

func (c *Client) ListAssistants(ctx context.Context, limit *int, order, after, before *string) (openai.AssistantsList, error) {
	ctx, done := c.observe(ctx, "assistants.list")
	resp, err := c.sdk.ListAssistants(ctx, limit, order, after, before)
	done(err)
	return resp, err
}

func (c *Client) DeleteAssistant(ctx context.Context, assistantID string) (openai.AssistantDeleteResponse, error) {
	ctx, done := c.observe(ctx, "assistants.delete", attribute.String("assistant.id", assistantID))
	resp, err := c.sdk.DeleteAssistant(ctx, assistantID)
	done(err)
	return resp, err
}

func (c *Client) CreateThread(ctx context.Context, req openai.ThreadRequest) (openai.Thread, error) {
	ctx, done := c.observe(ctx, "threads.create")
	resp, err := c.sdk.CreateThread(ctx, req)
	done(err)
	return resp, err
}

func (c *Client) RetrieveThread(ctx context.Context, threadID string) (openai.Thread, error) {
	ctx, done := c.observe(ctx, "threads.retrieve", attribute.String("thread.id", threadID))
	resp, err := c.sdk.RetrieveThread(ctx, threadID)
	done(err)
	return resp, err
}

func (c *Client) CreateMessage(ctx context.Context, threadID string, req openai.MessageRequest) (openai.Message, error) {
	ctx, done := c.observe(ctx, "messages.create", attribute.String("thread.id", threadID))
	resp, err := c.sdk.CreateMessage(ctx, threadID, req)
	done(err)
	return resp, err
}

func (c *Client) ListMessage(ctx context.Context, threadID string, limit *int, order, after, before, runID *string) (openai.MessagesList, error) {
	ctx, done := c.observe(ctx, "messages.list", attribute.String("thread.id", threadID))
	resp, err := c.sdk.ListMessage(ctx, threadID, limit, order, after, before, runID)
	done(err)
	return resp, err
}

func (c *Client) CreateRun(ctx context.Context, threadID string, req openai.RunRequest) (openai.Run, error) {
	ctx, done := c.observe(ctx, "runs.create",
		attribute.String("thread.id", threadID),
		attribute.String("assistant.id", req.AssistantID))
	resp, err := c.sdk.CreateRun(ctx, threadID, req)
	done(err)
	return resp, err
}

func (c *Client) RetrieveRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	ctx, done := c.observe(ctx, "runs.retrieve",
		attribute.String("thread.id", threadID),
		attribute.String("run.id", runID))
	resp, err := c.sdk.RetrieveRun(ctx, threadID, runID)
	done(err)
	return resp, err
}

func (c *Client) CancelRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	ctx, done := c.observe(ctx, "runs.cancel",
		attribute.String("thread.id", threadID),
		attribute.String("run.id", runID))
	resp, err := c.sdk.CancelRun(ctx, threadID, runID)
	done(err)
	return resp, err
}

func (c *Client) SubmitToolOutputs(ctx context.Context, threadID, runID string, req openai.SubmitToolOutputsRequest) (openai.Run, error) {
	ctx, done := c.observe(ctx, "runs.submit_tool_outputs",
		attribute.String("thread.id", threadID),
		attribute.String("run.id", runID),
		attribute.Int("tool_outputs", len(req.ToolOutputs)))
	resp, err := c.sdk.SubmitToolOutputs(ctx, threadID, runID, req)
	done(err)
	return resp, err
}
