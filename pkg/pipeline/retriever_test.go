package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/amara/docwise/pkg/vectorindex"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	namespaces map[string]bool
	passages   []vectorindex.Passage
	searchErr  error
}

func (f *fakeSearcher) Search(ctx context.Context, query, namespace string, k int) ([]vectorindex.Passage, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.passages, nil
}

func (f *fakeSearcher) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	return f.namespaces[namespace], nil
}

type fakeBindings struct {
	bound map[string]bool
}

func (f *fakeBindings) HasDocument(sessionID string) bool { return f.bound[sessionID] }

func newTestRetriever(t *testing.T, searcher *fakeSearcher, bindings *fakeBindings) *DocumentRetriever {
	t.Helper()
	r, err := NewDocumentRetriever(RetrieverConfig{
		Index:    searcher,
		Bindings: bindings,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return r
}

func TestDocumentRetriever_SerializesPassages(t *testing.T) {
	searcher := &fakeSearcher{
		namespaces: map[string]bool{"session_s1": true},
		passages: []vectorindex.Passage{
			{Content: "refunds take 5 days", Page: 3},
			{Content: "refunds need a receipt", Page: 4},
		},
	}
	bindings := &fakeBindings{bound: map[string]bool{"s1": true}}

	out, err := newTestRetriever(t, searcher, bindings).Retrieve(context.Background(), "s1", "refunds")
	require.NoError(t, err)

	assert.Equal(t,
		"Chunk 1 (page=3): refunds take 5 days\n\nChunk 2 (page=4): refunds need a receipt",
		out)
}

func TestDocumentRetriever_NoDocumentUploaded(t *testing.T) {
	searcher := &fakeSearcher{namespaces: map[string]bool{}}
	bindings := &fakeBindings{bound: map[string]bool{}}

	out, err := newTestRetriever(t, searcher, bindings).Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, msgNoDocumentUploaded, out)
}

func TestDocumentRetriever_NamespaceMissing(t *testing.T) {
	// Bound but the namespace is gone (e.g. cleared out from under it).
	searcher := &fakeSearcher{namespaces: map[string]bool{}}
	bindings := &fakeBindings{bound: map[string]bool{"s1": true}}

	out, err := newTestRetriever(t, searcher, bindings).Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, msgNoDocumentFound, out)
}

func TestDocumentRetriever_NoRelevantPassages(t *testing.T) {
	searcher := &fakeSearcher{namespaces: map[string]bool{"session_s1": true}}
	bindings := &fakeBindings{bound: map[string]bool{"s1": true}}

	out, err := newTestRetriever(t, searcher, bindings).Retrieve(context.Background(), "s1", "q")
	require.NoError(t, err)
	assert.Equal(t, msgNoRelevantInformation, out)
}

func TestDocumentRetriever_SearchErrorPropagates(t *testing.T) {
	searcher := &fakeSearcher{
		namespaces: map[string]bool{"session_s1": true},
		searchErr:  fmt.Errorf("index offline"),
	}
	bindings := &fakeBindings{bound: map[string]bool{"s1": true}}

	_, err := newTestRetriever(t, searcher, bindings).Retrieve(context.Background(), "s1", "q")
	assert.Error(t, err)
}
