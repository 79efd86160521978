package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Document is one embedded chunk of the note archive.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"-"`
}

// SearchResult is a document with its cosine similarity to the query.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// PGVectorStore stores documents in a pgvector table.
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-zA-Z0-9_]{0,62}$`)

// isValidTableName reports whether name is a safe PostgreSQL identifier.
func isValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}

func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long")
	}
	return &PGVectorStore{pool: pool, tableName: tableName}, nil
}

func (vs *PGVectorStore) table() string {
	return pgx.Identifier{vs.tableName}.Sanitize()
}

// AddDocuments inserts docs in one batch.
func (vs *PGVectorStore) AddDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (content, metadata, embedding) VALUES ($1, $2, $3)`, vs.table())

	batch := &pgx.Batch{}
	for _, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(query, doc.Content, metadataJSON, pgvector.NewVector(doc.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range docs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
	}
	return nil
}

// SimilaritySearch returns the topK documents closest to queryEmbedding
// among those matching filter. See buildMetadataQuery for the filter syntax.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	args := []any{pgvector.NewVector(queryEmbedding)}
	where, err := vs.buildMetadataQuery(filter, &args)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata query: %w", err)
	}
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) AS similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, vs.table(), where, len(args))

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var doc Document
		var metadataJSON []byte
		var similarity float64
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		results = append(results, SearchResult{Document: doc, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// DeleteByMetadata removes every document matching filter.
func (vs *PGVectorStore) DeleteByMetadata(ctx context.Context, filter map[string]any) (int64, error) {
	if len(filter) == 0 {
		return 0, fmt.Errorf("refusing to delete with an empty filter")
	}
	var args []any
	where, err := vs.buildMetadataQuery(filter, &args)
	if err != nil {
		return 0, fmt.Errorf("failed to build metadata query: %w", err)
	}
	tag, err := vs.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, vs.table(), where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	return tag.RowsAffected(), nil
}

// buildMetadataQuery builds a WHERE clause from filter, appending its
// parameters to args. Plain keys match by JSONB containment; $and, $or and
// $not combine nested filters.
func (vs *PGVectorStore) buildMetadataQuery(filter map[string]any, args *[]any) (string, error) {
	if len(filter) == 0 {
		return "TRUE", nil
	}

	var conditions []string
	for key, value := range filter {
		switch key {
		case "$and", "$or":
			list, ok := value.([]any)
			if !ok {
				return "", fmt.Errorf("value for %s must be a list of conditions", key)
			}
			var sub []string
			for _, item := range list {
				subMap, ok := item.(map[string]any)
				if !ok {
					return "", fmt.Errorf("item in %s list must be a JSON object", key)
				}
				q, err := vs.buildMetadataQuery(subMap, args)
				if err != nil {
					return "", err
				}
				sub = append(sub, "("+q+")")
			}
			if len(sub) == 0 {
				continue
			}
			op := " AND "
			if key == "$or" {
				op = " OR "
			}
			conditions = append(conditions, "("+strings.Join(sub, op)+")")

		case "$not":
			subMap, ok := value.(map[string]any)
			if !ok {
				return "", fmt.Errorf("value for $not must be a JSON object")
			}
			q, err := vs.buildMetadataQuery(subMap, args)
			if err != nil {
				return "", err
			}
			conditions = append(conditions, "NOT ("+q+")")

		default:
			pair, err := json.Marshal(map[string]any{key: value})
			if err != nil {
				return "", fmt.Errorf("failed to marshal metadata pair: %w", err)
			}
			*args = append(*args, pair)
			conditions = append(conditions, fmt.Sprintf("metadata @> $%d", len(*args)))
		}
	}

	if len(conditions) == 0 {
		return "TRUE", nil
	}
	return strings.Join(conditions, " AND "), nil
}
