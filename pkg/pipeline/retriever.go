package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/amara/docwise/pkg/vectorindex"
	"github.com/rs/zerolog"
)

// Fallback messages returned as retrieval context when no passages can be
// found. The retrieval stage never produces an empty context: the
// downstream stages always receive one of these tiers or real passages.
const (
	msgNoDocumentUploaded = "No document uploaded for this conversation yet.\n\n" +
		"Please upload a PDF document before asking questions. " +
		"Each conversation requires its own document."

	msgNoDocumentFound = "No document found for this session.\n\n" +
		"The document may have been deleted or not uploaded yet. " +
		"Please upload a PDF document to continue."

	msgNoRelevantInformation = "No relevant information found in the uploaded document.\n\n" +
		"This could mean:\n" +
		"- The question is outside the scope of the uploaded document\n" +
		"- Try rephrasing your question\n" +
		"- Consider uploading a different document"
)

// DefaultTopK is how many passages a single search returns.
const DefaultTopK = 4

// Retriever serves search requests issued by the retrieval stage, scoped
// to one session's namespace.
type Retriever interface {
	// Retrieve returns formatted context for the query. The result is
	// never empty: when nothing can be retrieved it carries a fallback
	// message explaining why.
	Retrieve(ctx context.Context, sessionID, query string) (string, error)
}

// SessionSearcher is the index surface the retriever needs. Satisfied by
// *vectorindex.Index.
type SessionSearcher interface {
	Search(ctx context.Context, query, namespace string, k int) ([]vectorindex.Passage, error)
	HasNamespace(ctx context.Context, namespace string) (bool, error)
}

// BindingChecker reports whether a session holds a document. Satisfied by
// *docsession.Manager.
type BindingChecker interface {
	HasDocument(sessionID string) bool
}

// DocumentRetriever searches the vector index within the session's
// namespace and serializes the hits for prompt injection.
type DocumentRetriever struct {
	index    SessionSearcher
	bindings BindingChecker
	topK     int
	logger   zerolog.Logger
}

// RetrieverConfig holds retriever configuration
type RetrieverConfig struct {
	Index    SessionSearcher
	Bindings BindingChecker
	TopK     int
	Logger   zerolog.Logger
}

// NewDocumentRetriever creates a retriever over the given index.
func NewDocumentRetriever(cfg RetrieverConfig) (*DocumentRetriever, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.Bindings == nil {
		return nil, fmt.Errorf("binding checker is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &DocumentRetriever{
		index:    cfg.Index,
		bindings: cfg.Bindings,
		topK:     topK,
		logger:   cfg.Logger,
	}, nil
}

// Retrieve implements Retriever.
func (r *DocumentRetriever) Retrieve(ctx context.Context, sessionID, query string) (string, error) {
	if !r.bindings.HasDocument(sessionID) {
		return msgNoDocumentUploaded, nil
	}

	namespace := vectorindex.NamespaceForSession(sessionID)
	exists, err := r.index.HasNamespace(ctx, namespace)
	if err != nil {
		return "", fmt.Errorf("namespace check failed: %w", err)
	}
	if !exists {
		return msgNoDocumentFound, nil
	}

	passages, err := r.index.Search(ctx, query, namespace, r.topK)
	if err != nil {
		return "", fmt.Errorf("search failed: %w", err)
	}
	if len(passages) == 0 {
		return msgNoRelevantInformation, nil
	}

	r.logger.Debug().
		Str("session_id", sessionID).
		Int("passages", len(passages)).
		Msg("Retrieved passages")

	return serializePassages(passages), nil
}

// serializePassages formats hits as "Chunk N (page=X): ..." blocks
// separated by blank lines, in result order.
func serializePassages(passages []vectorindex.Passage) string {
	blocks := make([]string, len(passages))
	for i, p := range passages {
		blocks[i] = fmt.Sprintf("Chunk %d (page=%d): %s", i+1, p.Page, p.Content)
	}
	return strings.Join(blocks, "\n\n")
}
