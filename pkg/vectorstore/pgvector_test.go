package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidTableName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"Valid standard", "research_notes", true},
		{"Valid with numbers", "notes2024", true},
		{"Valid short", "a", true},
		{"Valid max length", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_", true},
		{"Invalid start with number", "1notes", false},
		{"Invalid special chars", "research-notes", false},
		{"Invalid SQL injection", "notes; DROP TABLE research_runs", false},
		{"Invalid empty", "", false},
		{"Invalid too long", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789__", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidTableName(tt.input))
		})
	}
}

func TestNewPGVectorStoreRejectsBadName(t *testing.T) {
	_, err := NewPGVectorStore(nil, "bad name")
	require.Error(t, err)
}

func TestBuildMetadataQuery(t *testing.T) {
	vs := &PGVectorStore{}

	tests := []struct {
		name          string
		filter        map[string]any
		wantQuery     string
		wantArgsCount int
		wantErr       bool
	}{
		{
			name:      "Empty filter",
			filter:    map[string]any{},
			wantQuery: "TRUE",
		},
		{
			name:          "Single run",
			filter:        map[string]any{"run_id": "5f1c"},
			wantQuery:     "metadata @> $1",
			wantArgsCount: 1,
		},
		{
			name: "$or over runs",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"run_id": "a"},
					map[string]any{"run_id": "b"},
				},
			},
			wantQuery:     "((metadata @> $1) OR (metadata @> $2))",
			wantArgsCount: 2,
		},
		{
			name: "$not task",
			filter: map[string]any{
				"$not": map[string]any{"task_id": 3},
			},
			wantQuery:     "NOT (metadata @> $1)",
			wantArgsCount: 1,
		},
		{
			name: "Nested operators",
			filter: map[string]any{
				"$or": []any{
					map[string]any{"topic": "GNN"},
					map[string]any{
						"$and": []any{
							map[string]any{"run_id": "a"},
							map[string]any{"task_id": 1},
						},
					},
				},
			},
			wantQuery:     "((metadata @> $1) OR (((metadata @> $2) AND (metadata @> $3))))",
			wantArgsCount: 3,
		},
		{
			name:          "Implicit AND",
			filter:        map[string]any{"run_id": "a", "task_id": 2},
			wantQuery:     "metadata @> $1 AND metadata @> $2",
			wantArgsCount: 2,
		},
		{
			name:    "Error: $or is not a list",
			filter:  map[string]any{"$or": "invalid"},
			wantErr: true,
		},
		{
			name:    "Error: $and item is not an object",
			filter:  map[string]any{"$and": []any{"invalid"}},
			wantErr: true,
		},
		{
			name:    "Error: $not is not an object",
			filter:  map[string]any{"$not": []any{"invalid"}},
			wantErr: true,
		},
		{
			name:      "Empty operator list is ignored",
			filter:    map[string]any{"$or": []any{}},
			wantQuery: "TRUE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			gotQuery, err := vs.buildMetadataQuery(tt.filter, &args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, gotQuery)
			assert.Len(t, args, tt.wantArgsCount)
		})
	}
}

func TestBuildMetadataQueryContinuesPlaceholderNumbering(t *testing.T) {
	vs := &PGVectorStore{}
	args := []any{"query-vector"}

	q, err := vs.buildMetadataQuery(map[string]any{"run_id": "a"}, &args)
	require.NoError(t, err)
	assert.Equal(t, "metadata @> $2", q)
	assert.Len(t, args, 2)
	assert.JSONEq(t, `{"run_id":"a"}`, string(args[1].([]byte)))
}
