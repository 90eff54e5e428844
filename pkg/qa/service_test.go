package qa

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/pipeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRunner answers deterministically and records the inputs it saw.
type echoRunner struct {
	inputs  []pipeline.Input
	context string
	err     error
}

func (e *echoRunner) Run(ctx context.Context, in pipeline.Input) (*pipeline.Output, error) {
	e.inputs = append(e.inputs, in)
	if e.err != nil {
		return nil, e.err
	}
	return &pipeline.Output{
		Answer:      "answer to: " + in.Question,
		DraftAnswer: "draft",
		Context:     e.context,
		HistoryUsed: len(in.History) > 0,
	}, nil
}

func newTestService(t *testing.T, runner Runner) (*Service, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(conversation.StoreConfig{Logger: zerolog.Nop()})
	svc, err := NewService(ServiceConfig{
		Pipeline: runner,
		Sessions: store,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return svc, store
}

func TestService_AnswerConversationalCreatesSession(t *testing.T) {
	runner := &echoRunner{context: "some context"}
	svc, store := newTestService(t, runner)

	res, err := svc.AnswerConversational(context.Background(), "", "What is this about?")
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, res.TurnNumber)
	assert.False(t, res.HistoryUsed)
	assert.Equal(t, "answer to: What is this about?", res.Answer)

	history, err := store.History(res.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "some context", history[0].ContextExcerpt)
}

func TestService_AnswerConversationalFollowUpUsesHistory(t *testing.T) {
	runner := &echoRunner{context: "ctx"}
	svc, _ := newTestService(t, runner)

	first, err := svc.AnswerConversational(context.Background(), "", "What method is used?")
	require.NoError(t, err)
	assert.False(t, first.HistoryUsed)

	second, err := svc.AnswerConversational(context.Background(), first.SessionID, "Tell me more about it")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 2, second.TurnNumber)
	assert.True(t, second.HistoryUsed)

	// The pipeline saw the first exchange as history.
	require.Len(t, runner.inputs, 2)
	require.Len(t, runner.inputs[1].History, 1)
	assert.Equal(t, "What method is used?", runner.inputs[1].History[0].Question)
}

func TestService_AnswerConversationalUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &echoRunner{})

	_, err := svc.AnswerConversational(context.Background(), "missing", "q")
	assert.ErrorIs(t, err, conversation.ErrSessionNotFound)
}

func TestService_ContextExcerptIsTruncated(t *testing.T) {
	runner := &echoRunner{context: strings.Repeat("x", 500)}
	svc, store := newTestService(t, runner)

	res, err := svc.AnswerConversational(context.Background(), "", "q")
	require.NoError(t, err)

	// Full context returned to the caller, truncated excerpt stored.
	assert.Len(t, res.Context, 500)
	history, err := store.History(res.SessionID)
	require.NoError(t, err)
	assert.Len(t, history[0].ContextExcerpt, 200)
}

func TestService_ContextExcerptKeepsValidUTF8(t *testing.T) {
	// 100 three-byte runes; 200 bytes falls mid-rune, so the excerpt backs
	// off to the previous boundary instead of storing a torn byte sequence.
	runner := &echoRunner{context: strings.Repeat("世", 100)}
	svc, store := newTestService(t, runner)

	res, err := svc.AnswerConversational(context.Background(), "", "q")
	require.NoError(t, err)

	history, err := store.History(res.SessionID)
	require.NoError(t, err)

	stored := history[0].ContextExcerpt
	assert.True(t, utf8.ValidString(stored))
	assert.Len(t, stored, 198)
	assert.Equal(t, strings.Repeat("世", 66), stored)
}

func TestService_EnsureSession(t *testing.T) {
	svc, store := newTestService(t, &echoRunner{})

	svc.EnsureSession("caller-chosen")
	_, err := store.GetSession("caller-chosen")
	require.NoError(t, err)

	// Idempotent: re-ensuring keeps the existing session and its turns.
	_, err = store.AddTurn("caller-chosen", conversation.Turn{Question: "q", Answer: "a"})
	require.NoError(t, err)
	svc.EnsureSession("caller-chosen")

	history, err := store.History("caller-chosen")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_AnswerIsHistoryBlind(t *testing.T) {
	runner := &echoRunner{context: "ctx"}
	svc, store := newTestService(t, runner)

	id := store.CreateSession()
	_, err := store.AddTurn(id, conversation.Turn{Question: "old q", Answer: "old a"})
	require.NoError(t, err)

	res, err := svc.Answer(context.Background(), id, "standalone question")
	require.NoError(t, err)

	assert.False(t, res.HistoryUsed)
	assert.Empty(t, runner.inputs[0].History)

	// Single-shot answers are not appended to the conversation.
	history, err := store.History(id)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_PipelineErrorPropagates(t *testing.T) {
	runner := &echoRunner{err: fmt.Errorf("model upstream down")}
	svc, _ := newTestService(t, runner)

	_, err := svc.AnswerConversational(context.Background(), "", "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model upstream down")
}

func TestService_HistoryAndClear(t *testing.T) {
	runner := &echoRunner{context: "ctx"}
	svc, _ := newTestService(t, runner)

	res, err := svc.AnswerConversational(context.Background(), "", "q1")
	require.NoError(t, err)
	_, err = svc.AnswerConversational(context.Background(), res.SessionID, "q2")
	require.NoError(t, err)

	hist, err := svc.History(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, hist.TotalTurns)

	require.NoError(t, svc.ClearHistory(res.SessionID))
	hist, err = svc.History(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 0, hist.TotalTurns)

	assert.ErrorIs(t, svc.ClearHistory("missing"), conversation.ErrSessionNotFound)
}

func TestService_NewSession(t *testing.T) {
	svc, store := newTestService(t, &echoRunner{})

	id := svc.NewSession()
	assert.NotEmpty(t, id)
	_, err := store.GetSession(id)
	assert.NoError(t, err)
}
