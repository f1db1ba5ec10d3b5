// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// UpsertEmbedding stores the embedding vector of an entry.
func (m *MockRepository) UpsertEmbedding(ctx context.Context, groupUID, conversationUID, entryUID uuid.UUID, vector []float64, embeddingModel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.embeddings[entryUID] = &storedEmbedding{
		groupUID:        groupUID,
		conversationUID: conversationUID,
		vector:          append([]float64(nil), vector...),
		model:           embeddingModel,
	}
	return nil
}

// DeleteByGroup removes every embedding owned by the group.
func (m *MockRepository) DeleteByGroup(ctx context.Context, groupUID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for entryUID, embedding := range m.embeddings {
		if embedding.groupUID == groupUID {
			delete(m.embeddings, entryUID)
		}
	}
	return nil
}

// SemanticSearch ranks entries of the given groups by cosine similarity.
func (m *MockRepository) SemanticSearch(ctx context.Context, groupUIDs []uuid.UUID, vector []float64, limit int) ([]model.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	scoped := make(map[uuid.UUID]bool, len(groupUIDs))
	for _, groupUID := range groupUIDs {
		scoped[groupUID] = true
	}

	var results []model.SearchResult
	for entryUID, embedding := range m.embeddings {
		if !scoped[embedding.groupUID] {
			continue
		}
		score := cosineSimilarity(vector, embedding.vector)
		if math.IsNaN(score) {
			continue
		}
		results = append(results, model.SearchResult{
			EntryUID:        entryUID,
			ConversationUID: embedding.conversationUID,
			Score:           score,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FulltextSearch matches the plaintext index column of entries in the
// given groups.
func (m *MockRepository) FulltextSearch(ctx context.Context, groupUIDs []uuid.UUID, query string, limit int) ([]model.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, errs.NewValidation("search query is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	scoped := make(map[uuid.UUID]bool, len(groupUIDs))
	for _, groupUID := range groupUIDs {
		scoped[groupUID] = true
	}

	var results []model.SearchResult
	for _, entry := range m.entries {
		if !scoped[entry.GroupUID] || entry.IndexedContent == nil {
			continue
		}
		haystack := strings.ToLower(*entry.IndexedContent)
		count := strings.Count(haystack, needle)
		if count == 0 {
			continue
		}
		snippet := *entry.IndexedContent
		results = append(results, model.SearchResult{
			EntryUID:        entry.UID,
			ConversationUID: entry.ConversationUID,
			Score:           float64(count),
			Highlights:      &snippet,
		})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].EntryUID.String() < results[j].EntryUID.String()
		}
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return math.NaN()
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// mockEmbeddingProvider generates deterministic pseudo-embeddings from the
// input text so tests can exercise the semantic path offline.
type mockEmbeddingProvider struct {
	enabled bool
}

var _ port.EmbeddingProvider = (*mockEmbeddingProvider)(nil)

// NewMockEmbeddingProvider creates an embedding provider for testing.
func NewMockEmbeddingProvider(enabled bool) port.EmbeddingProvider {
	return &mockEmbeddingProvider{enabled: enabled}
}

// Enabled reports whether the provider is configured.
func (p *mockEmbeddingProvider) Enabled() bool {
	return p.enabled
}

// Model names the embedding model.
func (p *mockEmbeddingProvider) Model() string {
	return "mock-embedding-001"
}

// Embed generates one deterministic vector per input: a bag of character
// trigram hashes. Similar texts get similar vectors, which is enough for
// ranking assertions.
func (p *mockEmbeddingProvider) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if !p.enabled {
		return nil, errs.NewServiceUnavailable("embedding provider is not configured")
	}
	const dims = 64
	vectors := make([][]float64, 0, len(inputs))
	for _, input := range inputs {
		vector := make([]float64, dims)
		text := strings.ToLower(input)
		for i := 0; i+3 <= len(text); i++ {
			h := 0
			for _, c := range text[i : i+3] {
				h = h*31 + int(c)
			}
			vector[((h%dims)+dims)%dims]++
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}
