package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/amara/docwise/internal/observability"
	"github.com/amara/docwise/internal/tracing"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// NamespaceForSession derives the index namespace owned by a session.
// All passages uploaded through a session live under this namespace and
// are never visible to searches scoped to other sessions.
func NamespaceForSession(sessionID string) string {
	return "session_" + sessionID
}

// Passage is a scored retrieval result.
type Passage struct {
	ID         string  `json:"id"`
	Namespace  string  `json:"namespace"`
	Document   string  `json:"document"`
	ChunkIndex int     `json:"chunk_index"`
	Page       int     `json:"page"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// PassageInput is a passage to be embedded and stored.
type PassageInput struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
}

// Index is a namespace-scoped vector store backed by sqlite-vec.
type Index struct {
	db       *sql.DB
	embedder EmbeddingProvider
	logger   zerolog.Logger
	mu       sync.Mutex
}

// Config holds index configuration
type Config struct {
	DBPath   string
	Logger   zerolog.Logger
	Embedder EmbeddingProvider
}

// NewIndex opens the backing database and prepares the schema.
func NewIndex(cfg Config) (*Index, error) {
	observability.EnsureRegistered()

	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedding provider is required")
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	idx := &Index{
		db:       db,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
	}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

func (idx *Index) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS passages (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL,
			document TEXT NOT NULL,
			chunk_idx INTEGER NOT NULL,
			page INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_passages_namespace ON passages(namespace);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS passage_vectors USING vec0(
			passage_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, idx.embedder.Dimension())
	if _, err := idx.db.Exec(vectorSchema); err != nil {
		return err
	}

	return nil
}

// Close releases the backing database.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// IndexPassages embeds and stores the passages under the given namespace,
// replacing whatever the namespace previously held. Returns the number of
// passages stored.
func (idx *Index) IndexPassages(ctx context.Context, namespace, document string, passages []PassageInput) (int, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.vectorindex",
		"index.write",
		attribute.String("namespace", namespace),
		attribute.Int("passages", len(passages)),
	)
	defer span.End()

	if namespace == "" {
		return 0, errors.New("namespace is required")
	}
	if len(passages) == 0 {
		return 0, errors.New("no passages to index")
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}

	embeddings, err := idx.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return 0, fmt.Errorf("failed to embed passages: %w", err)
	}
	if len(embeddings) != len(passages) {
		return 0, fmt.Errorf("embedding count mismatch: got %d, want %d", len(embeddings), len(passages))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Re-index replaces the namespace contents in place.
	if err := deleteNamespaceTx(tx, namespace); err != nil {
		return 0, err
	}

	now := time.Now().Unix()
	for i, p := range passages {
		id := fmt.Sprintf("%s:%d", namespace, i)

		_, err := tx.ExecContext(ctx, `
			INSERT INTO passages (id, namespace, document, chunk_idx, page, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, id, namespace, document, i, p.Page, p.Content, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert passage: %w", err)
		}

		embeddingJSON, err := json.Marshal(embeddings[i])
		if err != nil {
			return 0, fmt.Errorf("failed to marshal embedding: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO passage_vectors (passage_id, embedding)
			VALUES (?, ?)
		`, id, string(embeddingJSON))
		if err != nil {
			return 0, fmt.Errorf("failed to insert embedding: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	observability.RecordIndexWrite(len(passages))
	idx.refreshPassageGauge(ctx)

	idx.logger.Info().
		Str("namespace", namespace).
		Str("document", document).
		Int("passages", len(passages)).
		Msg("Indexed passages")

	return len(passages), nil
}

// Search returns the k most similar passages within the namespace, ordered
// by descending similarity. A namespace with no passages yields an empty
// result, never an error.
func (idx *Index) Search(ctx context.Context, query, namespace string, k int) ([]Passage, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.vectorindex",
		"index.search",
		attribute.String("namespace", namespace),
		attribute.Int("k", k),
	)
	defer span.End()

	start := time.Now()
	defer func() { observability.RecordSearch(time.Since(start)) }()

	if query == "" {
		return []Passage{}, nil
	}
	if k <= 0 {
		k = 4
	}

	embedding, err := idx.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query embedding failed")
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	embeddingJSON, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding: %w", err)
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT p.id, p.namespace, p.document, p.chunk_idx, p.page, p.content,
			vec_distance_cosine(v.embedding, ?) AS distance
		FROM passage_vectors v
		JOIN passages p ON p.id = v.passage_id
		WHERE p.namespace = ?
		ORDER BY distance ASC
		LIMIT ?
	`, string(embeddingJSON), namespace, k)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	results := []Passage{}
	for rows.Next() {
		var p Passage
		var distance float64
		if err := rows.Scan(&p.ID, &p.Namespace, &p.Document, &p.ChunkIndex, &p.Page, &p.Content, &distance); err != nil {
			return nil, err
		}
		// cosine distance is in [0, 2]; similarity = 1 - distance
		p.Score = 1.0 - distance
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idx.logger.Debug().
		Str("namespace", namespace).
		Int("results", len(results)).
		Msg("Search completed")

	return results, nil
}

// HasNamespace reports whether the namespace holds any passages.
func (idx *Index) HasNamespace(ctx context.Context, namespace string) (bool, error) {
	var exists bool
	err := idx.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM passages WHERE namespace = ?)
	`, namespace).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check namespace: %w", err)
	}
	return exists, nil
}

// ClearNamespace removes every passage in the namespace and returns how
// many were removed. Clearing an absent namespace is a no-op returning 0.
func (idx *Index) ClearNamespace(ctx context.Context, namespace string) (int, error) {
	ctx, span := tracing.StartSpan(
		ctx,
		"docwise.vectorindex",
		"index.clear_namespace",
		attribute.String("namespace", namespace),
	)
	defer span.End()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	var count int
	err := idx.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM passages WHERE namespace = ?
	`, namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count namespace: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteNamespaceTx(tx, namespace); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	observability.RecordNamespaceClear()
	idx.refreshPassageGauge(ctx)

	idx.logger.Info().
		Str("namespace", namespace).
		Int("removed", count).
		Msg("Cleared namespace")

	return count, nil
}

// ClearAll wipes every namespace and returns the number of passages
// removed. Used at startup so stale vectors from a previous run never
// leak into new sessions.
func (idx *Index) ClearAll(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var count int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM passage_vectors`); err != nil {
		return 0, fmt.Errorf("failed to clear vectors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM passages`); err != nil {
		return 0, fmt.Errorf("failed to clear passages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	observability.SetIndexedPassages(0)

	idx.logger.Info().Int("removed", count).Msg("Cleared all namespaces")
	return count, nil
}

func deleteNamespaceTx(tx *sql.Tx, namespace string) error {
	_, err := tx.Exec(`
		DELETE FROM passage_vectors
		WHERE passage_id IN (SELECT id FROM passages WHERE namespace = ?)
	`, namespace)
	if err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM passages WHERE namespace = ?`, namespace); err != nil {
		return fmt.Errorf("failed to clear passages: %w", err)
	}
	return nil
}

func (idx *Index) refreshPassageGauge(ctx context.Context) {
	var total int
	if err := idx.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&total); err != nil {
		return
	}
	observability.SetIndexedPassages(total)
}
