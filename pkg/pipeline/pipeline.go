// Package pipeline runs the three-stage answer flow: a retrieval stage
// that gathers document context through a search tool, a summarization
// stage that drafts an answer from that context, and a verification stage
// that strips unsupported claims from the draft. Stages run strictly in
// order and a failed stage aborts the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amara/docwise/internal/observability"
	"github.com/amara/docwise/internal/tracing"
	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	searchToolName = "search_document"

	// maxToolRounds bounds how many tool-call rounds the retrieval stage
	// will serve before consolidating whatever it has.
	maxToolRounds = 5
)

var searchToolSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "The search query string to find relevant document chunks.",
		},
	},
	"required": []string{"query"},
}

// Input is one question to answer.
type Input struct {
	SessionID string
	Question  string
	// History enables the conversational prompt variants. A nil or empty
	// history runs the single-shot variants.
	History []conversation.Turn
}

// Output is the result of a completed run.
type Output struct {
	Answer      string `json:"answer"`
	DraftAnswer string `json:"draft_answer"`
	Context     string `json:"context"`
	HistoryUsed bool   `json:"history_used"`
}

// Pipeline wires the three stages to a text-generation provider and a
// document retriever.
type Pipeline struct {
	provider      llm.Provider
	retriever     Retriever
	model         string
	temperature   float64
	maxTokens     int
	historyWindow int
	logger        zerolog.Logger
	toolSchema    *gojsonschema.Schema
}

// Config holds pipeline configuration
type Config struct {
	Provider      llm.Provider
	Retriever     Retriever
	Model         string
	Temperature   float64
	MaxTokens     int
	HistoryWindow int
	Logger        zerolog.Logger
}

// New creates a pipeline.
func New(cfg Config) (*Pipeline, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	historyWindow := cfg.HistoryWindow
	if historyWindow <= 0 {
		historyWindow = conversation.DefaultHistoryWindow
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(searchToolSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile tool schema: %w", err)
	}

	return &Pipeline{
		provider:      cfg.Provider,
		retriever:     cfg.Retriever,
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		historyWindow: historyWindow,
		logger:        cfg.Logger,
		toolSchema:    schema,
	}, nil
}

// Run executes retrieval, summarization, and verification in order.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Output, error) {
	conversational := len(in.History) > 0
	variant := "single_shot"
	if conversational {
		variant = "conversational"
	}

	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.pipeline",
		"pipeline.run",
		attribute.String("session_id", in.SessionID),
		attribute.String("variant", variant),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)
	start := time.Now()

	if in.Question == "" {
		return nil, errors.New("question is required")
	}

	historyText := conversation.FormatHistory(in.History, p.historyWindow)

	docContext, err := p.runRetrieval(ctx, in, historyText, conversational)
	if err != nil {
		observability.RecordPipelineRun(variant, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval stage failed")
		return nil, fmt.Errorf("retrieval stage: %w", err)
	}

	draft, err := p.runSummarization(ctx, in.Question, docContext, historyText, conversational)
	if err != nil {
		observability.RecordPipelineRun(variant, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarization stage failed")
		return nil, fmt.Errorf("summarization stage: %w", err)
	}

	answer, err := p.runVerification(ctx, in.Question, docContext, draft, historyText, conversational)
	if err != nil {
		observability.RecordPipelineRun(variant, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification stage failed")
		return nil, fmt.Errorf("verification stage: %w", err)
	}

	observability.RecordPipelineRun(variant, "ok", time.Since(start))

	logger.Info().
		Str("session_id", in.SessionID).
		Str("variant", variant).
		Dur("duration", time.Since(start)).
		Msg("Pipeline run completed")

	return &Output{
		Answer:      answer,
		DraftAnswer: draft,
		Context:     docContext,
		HistoryUsed: conversational,
	}, nil
}

// runRetrieval drives the tool-call loop. The model may search multiple
// times with different formulations; the last tool result becomes the
// consolidated context. If the model never calls the tool, a direct
// search with the raw question guarantees a non-empty context.
func (p *Pipeline) runRetrieval(ctx context.Context, in Input, historyText string, conversational bool) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "docwise.pipeline", "stage.retrieval")
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordStage("retrieval", time.Since(start)) }()

	systemPrompt := retrievalSystemPrompt
	if conversational {
		systemPrompt = conversationalRetrievalSystemPrompt
	}

	messages := []llm.Message{
		{Role: "user", Content: retrievalUserPrompt(in.Question, historyText, conversational)},
	}
	tools := []llm.ToolDefinition{{
		Name:        searchToolName,
		Description: "Search the vector database for relevant document chunks.",
		InputSchema: searchToolSchema,
	}}

	lastToolResult := ""
	for round := 0; round < maxToolRounds; round++ {
		resp, err := p.provider.Complete(ctx, llm.Request{
			Model:        p.model,
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        tools,
			Temperature:  p.temperature,
			MaxTokens:    p.maxTokens,
		})
		if err != nil {
			observability.RecordStageError("retrieval")
			return "", err
		}

		if len(resp.ToolCalls) == 0 {
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := p.serveToolCall(ctx, in.SessionID, call)
			lastToolResult = result
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	if lastToolResult != "" {
		return lastToolResult, nil
	}

	// Model answered without searching; search for it.
	result, err := p.retriever.Retrieve(ctx, in.SessionID, in.Question)
	if err != nil {
		observability.RecordStageError("retrieval")
		return "", err
	}
	return result, nil
}

// serveToolCall validates and executes one search call. Failures are
// reported back to the model as tool output rather than aborting the
// stage, so a single malformed call doesn't sink the run.
func (p *Pipeline) serveToolCall(ctx context.Context, sessionID string, call llm.ToolCall) string {
	if call.Name != searchToolName {
		return fmt.Sprintf("Unknown tool: %s", call.Name)
	}

	result, err := p.toolSchema.Validate(gojsonschema.NewGoLoader(call.Arguments))
	if err != nil {
		return fmt.Sprintf("Invalid tool arguments: %v", err)
	}
	if !result.Valid() {
		problems := []string{}
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Sprintf("Invalid tool arguments: %v", problems)
	}

	query, _ := call.Arguments["query"].(string)
	out, err := p.retriever.Retrieve(ctx, sessionID, query)
	if err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Search tool call failed")
		return fmt.Sprintf("Search failed: %v", err)
	}
	return out
}

func (p *Pipeline) runSummarization(ctx context.Context, question, docContext, historyText string, conversational bool) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "docwise.pipeline", "stage.summarization")
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordStage("summarization", time.Since(start)) }()

	systemPrompt := summarizationSystemPrompt
	if conversational {
		systemPrompt = conversationalSummarizationSystemPrompt
	}

	resp, err := p.provider.Complete(ctx, llm.Request{
		Model:        p.model,
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: summarizationUserPrompt(question, docContext, historyText, conversational)},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		observability.RecordStageError("summarization")
		return "", err
	}
	return resp.Content, nil
}

func (p *Pipeline) runVerification(ctx context.Context, question, docContext, draft, historyText string, conversational bool) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "docwise.pipeline", "stage.verification")
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordStage("verification", time.Since(start)) }()

	systemPrompt := verificationSystemPrompt
	if conversational {
		systemPrompt = conversationalVerificationSystemPrompt
	}

	resp, err := p.provider.Complete(ctx, llm.Request{
		Model:        p.model,
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: verificationUserPrompt(question, docContext, draft, historyText, conversational)},
		},
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	})
	if err != nil {
		observability.RecordStageError("verification")
		return "", err
	}
	return resp.Content, nil
}
