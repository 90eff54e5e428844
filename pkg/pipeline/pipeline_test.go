package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns canned responses in order and records every
// request it served.
type scriptedProvider struct {
	responses []*llm.Response
	requests  []llm.Request
	err       error
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &llm.Response{Content: "exhausted"}, nil
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type scriptedRetriever struct {
	result  string
	err     error
	queries []string
}

func (s *scriptedRetriever) Retrieve(ctx context.Context, sessionID, query string) (string, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

func newTestPipeline(t *testing.T, provider llm.Provider, retriever Retriever) *Pipeline {
	t.Helper()
	p, err := New(Config{
		Provider:  provider,
		Retriever: retriever,
		Model:     "test-model",
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return p
}

func searchCall(id, query string) llm.ToolCall {
	return llm.ToolCall{
		ID:        id,
		Name:      searchToolName,
		Arguments: map[string]interface{}{"query": query},
	}
}

func TestPipeline_RunSingleShot(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("c1", "refund policy")}},
		{Content: "done retrieving"},
		{Content: "draft answer"},
		{Content: "verified answer"},
	}}
	retriever := &scriptedRetriever{result: "Chunk 1 (page=3): refunds take 5 days"}

	out, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "How long do refunds take?",
	})
	require.NoError(t, err)

	assert.Equal(t, "verified answer", out.Answer)
	assert.Equal(t, "draft answer", out.DraftAnswer)
	assert.Equal(t, "Chunk 1 (page=3): refunds take 5 days", out.Context)
	assert.False(t, out.HistoryUsed)
	assert.Equal(t, []string{"refund policy"}, retriever.queries)

	// Four provider calls: two retrieval rounds, summarize, verify.
	require.Len(t, provider.requests, 4)
	assert.Equal(t, retrievalSystemPrompt, provider.requests[0].SystemPrompt)
	assert.Equal(t, summarizationSystemPrompt, provider.requests[2].SystemPrompt)
	assert.Contains(t, provider.requests[2].Messages[0].Content, "refunds take 5 days")
	assert.Equal(t, verificationSystemPrompt, provider.requests[3].SystemPrompt)
	assert.Contains(t, provider.requests[3].Messages[0].Content, "draft answer")
}

func TestPipeline_RunConversationalUsesHistoryPrompts(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("c1", "that method details")}},
		{Content: "done"},
		{Content: "draft"},
		{Content: "final"},
	}}
	retriever := &scriptedRetriever{result: "Chunk 1 (page=1): details"}

	out, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "Tell me more about it",
		History: []conversation.Turn{
			{Number: 1, Question: "What method is used?", Answer: "Gradient descent."},
		},
	})
	require.NoError(t, err)

	assert.True(t, out.HistoryUsed)
	assert.Equal(t, conversationalRetrievalSystemPrompt, provider.requests[0].SystemPrompt)
	assert.Contains(t, provider.requests[0].Messages[0].Content, "Turn 1:")
	assert.Contains(t, provider.requests[0].Messages[0].Content, "Gradient descent.")
	assert.Equal(t, conversationalVerificationSystemPrompt, provider.requests[3].SystemPrompt)
}

func TestPipeline_MultipleSearchesKeepLastResult(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("c1", "first query")}},
		{ToolCalls: []llm.ToolCall{searchCall("c2", "second query")}},
		{Content: "done"},
		{Content: "draft"},
		{Content: "final"},
	}}
	retriever := &scriptedRetriever{result: "some chunks"}

	out, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "q",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"first query", "second query"}, retriever.queries)
	assert.Equal(t, "some chunks", out.Context)
}

func TestPipeline_NoToolCallFallsBackToDirectSearch(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{Content: "I don't need to search"},
		{Content: "draft"},
		{Content: "final"},
	}}
	retriever := &scriptedRetriever{result: "direct context"}

	out, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "the question",
	})
	require.NoError(t, err)

	assert.Equal(t, "direct context", out.Context)
	assert.Equal(t, []string{"the question"}, retriever.queries)
}

func TestPipeline_InvalidToolArgumentsReportedToModel(t *testing.T) {
	provider := &scriptedProvider{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{{
			ID:        "c1",
			Name:      searchToolName,
			Arguments: map[string]interface{}{"q": "wrong field"},
		}}},
		{Content: "done"},
		{Content: "draft"},
		{Content: "final"},
	}}
	retriever := &scriptedRetriever{result: "unused"}

	out, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "q",
	})
	require.NoError(t, err)

	// Validation failure became the tool result, not a run failure; the
	// model never triggered a real search.
	assert.Empty(t, retriever.queries)
	assert.Contains(t, out.Context, "Invalid tool arguments")
}

func TestPipeline_ProviderErrorAbortsRun(t *testing.T) {
	provider := &scriptedProvider{err: fmt.Errorf("upstream unavailable")}
	retriever := &scriptedRetriever{result: "ctx"}

	_, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{
		SessionID: "s1",
		Question:  "q",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval stage")
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestPipeline_EmptyQuestionRejected(t *testing.T) {
	provider := &scriptedProvider{}
	retriever := &scriptedRetriever{}

	_, err := newTestPipeline(t, provider, retriever).Run(context.Background(), Input{SessionID: "s1"})
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Retriever: &scriptedRetriever{}, Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{Provider: &scriptedProvider{}, Model: "m"})
	assert.Error(t, err)

	_, err = New(Config{Provider: &scriptedProvider{}, Retriever: &scriptedRetriever{}})
	assert.Error(t, err)
}
