// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package nats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// highlightContext is how many characters of context a fulltext highlight
// carries on each side of the match.
const highlightContext = 40

// embeddingRecord is the stored shape of an entry embedding. The model
// name is recorded so re-indexing after a model change can be selective.
type embeddingRecord struct {
	GroupUID        uuid.UUID `json:"group_uid"`
	ConversationUID uuid.UUID `json:"conversation_uid"`
	EntryUID        uuid.UUID `json:"entry_uid"`
	Model           string    `json:"model"`
	Vector          []float64 `json:"vector"`
}

// UpsertEmbedding stores the embedding vector of an entry.
func (s *storage) UpsertEmbedding(ctx context.Context, groupUID, conversationUID, entryUID uuid.UUID, vector []float64, embeddingModel string) error {
	record := &embeddingRecord{
		GroupUID:        groupUID,
		ConversationUID: conversationUID,
		EntryUID:        entryUID,
		Model:           embeddingModel,
		Vector:          vector,
	}
	key := fmt.Sprintf(constants.KVKeyEmbedding, groupUID, entryUID)
	if _, err := s.put(ctx, constants.KVBucketNameEmbeddings, key, record); err != nil {
		return errs.NewServiceUnavailable("failed to store embedding")
	}
	return nil
}

// DeleteByGroup removes every embedding owned by the group.
func (s *storage) DeleteByGroup(ctx context.Context, groupUID uuid.UUID) error {
	keys, err := s.listKeys(ctx, constants.KVBucketNameEmbeddings, fmt.Sprintf(constants.KVKeyEmbeddingPrefix, groupUID))
	if err != nil {
		return errs.NewServiceUnavailable("failed to delete group embeddings")
	}
	for _, key := range keys {
		if err := s.delete(ctx, constants.KVBucketNameEmbeddings, key); err != nil {
			return err
		}
	}
	return nil
}

// SemanticSearch ranks entries of the given groups by cosine similarity to
// the query vector.
func (s *storage) SemanticSearch(ctx context.Context, groupUIDs []uuid.UUID, vector []float64, limit int) ([]model.SearchResult, error) {
	var results []model.SearchResult
	for _, groupUID := range groupUIDs {
		keys, err := s.listKeys(ctx, constants.KVBucketNameEmbeddings, fmt.Sprintf(constants.KVKeyEmbeddingPrefix, groupUID))
		if err != nil {
			return nil, errs.NewServiceUnavailable("failed to search embeddings")
		}
		for _, key := range keys {
			record := &embeddingRecord{}
			if _, err := s.get(ctx, constants.KVBucketNameEmbeddings, key, record); err != nil {
				if errors.Is(err, jetstream.ErrKeyNotFound) {
					continue
				}
				return nil, errs.NewServiceUnavailable("failed to search embeddings")
			}
			score := cosineSimilarity(vector, record.Vector)
			if math.IsNaN(score) {
				continue
			}
			results = append(results, model.SearchResult{
				EntryUID:        record.EntryUID,
				ConversationUID: record.ConversationUID,
				Score:           score,
				Kind:            string(model.SearchTypeSemantic),
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// FulltextSearch matches the plaintext index column of entries in the
// given groups, case-insensitively.
func (s *storage) FulltextSearch(ctx context.Context, groupUIDs []uuid.UUID, query string, limit int) ([]model.SearchResult, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, errs.NewValidation("search query cannot be empty")
	}

	var results []model.SearchResult
	for _, groupUID := range groupUIDs {
		entries, err := s.ListGroupEntries(ctx, groupUID)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IndexedContent == nil {
				continue
			}
			haystack := strings.ToLower(*entry.IndexedContent)
			pos := strings.Index(haystack, needle)
			if pos < 0 {
				continue
			}
			highlight := highlightAround(*entry.IndexedContent, pos, len(needle))
			results = append(results, model.SearchResult{
				EntryUID:        entry.UID,
				ConversationUID: entry.ConversationUID,
				Score:           float64(strings.Count(haystack, needle)),
				Kind:            string(model.SearchTypeFulltext),
				Highlights:      &highlight,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

func highlightAround(text string, pos, matchLen int) string {
	start := pos - highlightContext
	if start < 0 {
		start = 0
	}
	end := pos + matchLen + highlightContext
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
