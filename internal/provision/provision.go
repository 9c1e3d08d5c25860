// Package provision makes sure an assistant and a thread exist before a run.
package provision

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"AssistantChat/internal/backend"
	"AssistantChat/internal/config"
	"AssistantChat/internal/session"
)

// Result holds the assistant and thread a run will use
type Result struct {
	Assistant        openai.Assistant
	Thread           openai.Thread
	CreatedAssistant bool
	CreatedThread    bool
}

// Provisioner reuses stored assistant and thread ids or creates new ones
type Provisioner struct {
	api    backend.API
	def    config.AssistantDefinition
	tools  []openai.AssistantTool // extra function tools, e.g. from MCP servers
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a Provisioner. extraTools are appended to the definition's tools on creation.
func New(api backend.API, def config.AssistantDefinition, extraTools []openai.AssistantTool, logger *slog.Logger, tracer trace.Tracer) *Provisioner {
	return &Provisioner{
		api:    api,
		def:    def,
		tools:  extraTools,
		logger: logger,
		tracer: tracer,
	}
}

// Ensure returns a valid assistant and thread, writing any new ids into st.
// A stored id that the API reports as missing is replaced; any other
// retrieval failure aborts without creating anything.
func (p *Provisioner) Ensure(ctx context.Context, st *session.State) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "provision")
	defer span.End()

	res := &Result{}

	assistant, created, err := p.ensureAssistant(ctx, st)
	if err != nil {
		return nil, err
	}
	res.Assistant = assistant
	res.CreatedAssistant = created

	thread, created, err := p.ensureThread(ctx, st)
	if err != nil {
		return nil, err
	}
	res.Thread = thread
	res.CreatedThread = created

	span.SetAttributes(
		attribute.String("assistant.id", assistant.ID),
		attribute.String("thread.id", thread.ID),
		attribute.Bool("assistant.created", res.CreatedAssistant),
		attribute.Bool("thread.created", res.CreatedThread),
	)
	return res, nil
}

func (p *Provisioner) ensureAssistant(ctx context.Context, st *session.State) (openai.Assistant, bool, error) {
	if st.Assistant != "" {
		p.logger.Info("retrieving stored assistant", "assistant_id", st.Assistant)
		assistant, err := p.api.RetrieveAssistant(ctx, st.Assistant)
		switch backend.Classify(err) {
		case backend.Found:
			return assistant, false, nil
		case backend.NotFound:
			p.logger.Warn("stored assistant not found, creating a new one", "assistant_id", st.Assistant, "error", err)
			st.Assistant = ""
		default:
			return openai.Assistant{}, false, fmt.Errorf("failed to retrieve assistant %s: %w", st.Assistant, err)
		}
	}

	assistant, err := p.api.CreateAssistant(ctx, p.assistantRequest())
	if err != nil {
		return openai.Assistant{}, false, fmt.Errorf("failed to create assistant: %w", err)
	}
	st.Assistant = assistant.ID
	p.logger.Info("created assistant", "assistant_id", assistant.ID, "model", p.def.Model)
	return assistant, true, nil
}

func (p *Provisioner) ensureThread(ctx context.Context, st *session.State) (openai.Thread, bool, error) {
	if st.Thread != "" {
		p.logger.Info("retrieving stored thread", "thread_id", st.Thread)
		thread, err := p.api.RetrieveThread(ctx, st.Thread)
		switch backend.Classify(err) {
		case backend.Found:
			return thread, false, nil
		case backend.NotFound:
			p.logger.Warn("stored thread not found, creating a new one", "thread_id", st.Thread, "error", err)
			st.Thread = ""
		default:
			return openai.Thread{}, false, fmt.Errorf("failed to retrieve thread %s: %w", st.Thread, err)
		}
	}

	thread, err := p.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return openai.Thread{}, false, fmt.Errorf("failed to create thread: %w", err)
	}
	st.Thread = thread.ID
	// a stored run belonged to the previous thread
	st.Run = ""
	p.logger.Info("created thread", "thread_id", thread.ID)
	return thread, true, nil
}

func (p *Provisioner) assistantRequest() openai.AssistantRequest {
	name := p.def.Name
	instructions := p.def.Instructions
	req := openai.AssistantRequest{
		Model:        p.def.Model,
		Name:         &name,
		Instructions: &instructions,
	}
	if p.def.Description != "" {
		description := p.def.Description
		req.Description = &description
	}
	if len(p.def.Metadata) > 0 {
		req.Metadata = make(map[string]any, len(p.def.Metadata))
		for k, v := range p.def.Metadata {
			req.Metadata[k] = v
		}
	}

	for _, tool := range p.def.Tools {
		switch tool {
		case config.ToolCodeInterpreter:
			req.Tools = append(req.Tools, openai.AssistantTool{Type: openai.AssistantToolTypeCodeInterpreter})
		case config.ToolFileSearch:
			req.Tools = append(req.Tools, openai.AssistantTool{Type: openai.AssistantToolTypeFileSearch})
		}
	}
	req.Tools = append(req.Tools, p.tools...)
	return req
}
