// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
)

// SearchBackend is the narrow boundary to the search store. Semantic
// queries are always scoped to the caller's groups.
type SearchBackend interface {
	// UpsertEmbedding stores the embedding vector of an entry.
	UpsertEmbedding(ctx context.Context, groupUID, conversationUID, entryUID uuid.UUID, vector []float64, embeddingModel string) error

	// DeleteByGroup removes every embedding owned by the group.
	DeleteByGroup(ctx context.Context, groupUID uuid.UUID) error

	// SemanticSearch ranks entries of the given groups by similarity to the
	// query vector.
	SemanticSearch(ctx context.Context, groupUIDs []uuid.UUID, vector []float64, limit int) ([]model.SearchResult, error)

	// FulltextSearch matches the plaintext index column of entries in the
	// given groups.
	FulltextSearch(ctx context.Context, groupUIDs []uuid.UUID, query string, limit int) ([]model.SearchResult, error)
}

// EmbeddingProvider generates embedding vectors for indexing and semantic
// search. A disabled provider reports Enabled() == false and the search
// boundary falls through to fulltext.
type EmbeddingProvider interface {
	// Enabled reports whether the provider is configured.
	Enabled() bool

	// Model names the embedding model, recorded with stored vectors so
	// re-indexing can be selective.
	Model() string

	// Embed generates one vector per input text.
	Embed(ctx context.Context, inputs []string) ([][]float64, error)
}
