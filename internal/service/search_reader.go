// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/cursor"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// SearchReader defines the entry search use case.
type SearchReader interface {
	// Search runs a scoped entry search across the principal's groups.
	Search(ctx context.Context, principal model.Principal, query model.SearchQuery) (*model.SearchResults, error)
}

// searchReaderOrchestratorOption configures the search orchestrator.
type searchReaderOrchestratorOption func(*searchReaderOrchestrator)

// WithSearchBackend sets the search backend.
func WithSearchBackend(backend port.SearchBackend) searchReaderOrchestratorOption {
	return func(r *searchReaderOrchestrator) {
		r.backend = backend
	}
}

// WithSearchEmbeddings sets the embedding provider.
func WithSearchEmbeddings(embeddings port.EmbeddingProvider) searchReaderOrchestratorOption {
	return func(r *searchReaderOrchestrator) {
		r.embeddings = embeddings
	}
}

// WithSearchMemberships sets the membership reader used for group scoping.
func WithSearchMemberships(reader port.MembershipReader) searchReaderOrchestratorOption {
	return func(r *searchReaderOrchestrator) {
		r.memberships = reader
	}
}

// WithSearchConversations sets the conversation reader used to attach titles.
func WithSearchConversations(reader port.ConversationReader) searchReaderOrchestratorOption {
	return func(r *searchReaderOrchestrator) {
		r.conversations = reader
	}
}

// WithSearchEntries sets the entry reader used to hydrate full entries.
func WithSearchEntries(reader port.EntryReader) searchReaderOrchestratorOption {
	return func(r *searchReaderOrchestrator) {
		r.entries = reader
	}
}

// searchReaderOrchestrator implements the entry search use case.
type searchReaderOrchestrator struct {
	backend       port.SearchBackend
	embeddings    port.EmbeddingProvider
	memberships   port.MembershipReader
	conversations port.ConversationReader
	entries       port.EntryReader
}

// NewSearchReaderOrchestrator creates the search orchestrator using the
// option pattern.
func NewSearchReaderOrchestrator(opts ...searchReaderOrchestratorOption) SearchReader {
	rc := &searchReaderOrchestrator{}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Search runs a scoped entry search across the principal's groups.
func (sr *searchReaderOrchestrator) Search(ctx context.Context, principal model.Principal, query model.SearchQuery) (*model.SearchResults, error) {
	if strings.TrimSpace(query.Query) == "" {
		return nil, errs.NewValidation("search query is required")
	}
	if query.Type == "" {
		query.Type = model.SearchTypeAuto
	}
	if !query.Type.Valid() {
		return nil, errs.NewValidation("unknown search type")
	}
	if !principal.IsUser() {
		return nil, errs.NewForbidden("search requires a user identity")
	}
	limit := normalizeLimit(query.Limit)

	groupUIDs, err := sr.memberships.ListUserGroups(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	if len(groupUIDs) == 0 {
		return &model.SearchResults{Data: []model.SearchResult{}}, nil
	}

	slog.DebugContext(ctx, "executing search use case",
		"search_type", query.Type,
		"groups", len(groupUIDs),
		"limit", limit,
	)

	// Fetch beyond the page so the cursor anchor can be located and the
	// next page served from the same ranking.
	fetchLimit := limit * constants.TitleSearchOverFetchFactor
	if fetchLimit > constants.TitleSearchOverFetchCap {
		fetchLimit = constants.TitleSearchOverFetchCap
	}

	results, kind, err := sr.runSearch(ctx, query, groupUIDs, fetchLimit)
	if err != nil {
		return nil, err
	}

	if query.GroupByConversation {
		results = bestPerConversation(results)
	}

	page, nextPosition, err := paginateSearchResults(results, query.After, limit)
	if err != nil {
		return nil, err
	}

	sr.hydrate(ctx, page, kind, query.IncludeEntry)

	return &model.SearchResults{
		Data:        page,
		AfterCursor: cursor.EncodePtr(nextPosition),
	}, nil
}

// runSearch dispatches to the semantic or fulltext path. Auto prefers
// semantic and falls through to fulltext when embeddings are unavailable.
func (sr *searchReaderOrchestrator) runSearch(ctx context.Context, query model.SearchQuery, groupUIDs []uuid.UUID, limit int) ([]model.SearchResult, string, error) {
	semanticReady := sr.embeddings != nil && sr.embeddings.Enabled()

	switch query.Type {
	case model.SearchTypeSemantic:
		if !semanticReady {
			return nil, "", errs.NewServiceUnavailable(
				"semantic search is not configured; available search types: fulltext, auto")
		}
		results, err := sr.semanticSearch(ctx, query.Query, groupUIDs, limit)
		return results, string(model.SearchTypeSemantic), err

	case model.SearchTypeFulltext:
		results, err := sr.backend.FulltextSearch(ctx, groupUIDs, query.Query, limit)
		return results, string(model.SearchTypeFulltext), err

	default:
		if semanticReady {
			results, err := sr.semanticSearch(ctx, query.Query, groupUIDs, limit)
			if err == nil && len(results) > 0 {
				return results, string(model.SearchTypeSemantic), nil
			}
			// Zero semantic hits fall through to fulltext as well.
			if err != nil {
				slog.WarnContext(ctx, "semantic search failed, falling back to fulltext", "error", err)
			}
		}
		results, err := sr.backend.FulltextSearch(ctx, groupUIDs, query.Query, limit)
		return results, string(model.SearchTypeFulltext), err
	}
}

// semanticSearch embeds the query and ranks stored vectors against it.
func (sr *searchReaderOrchestrator) semanticSearch(ctx context.Context, query string, groupUIDs []uuid.UUID, limit int) ([]model.SearchResult, error) {
	vectors, err := sr.embeddings.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, errs.NewUnexpected("embedding provider returned no vector")
	}
	return sr.backend.SemanticSearch(ctx, groupUIDs, vectors[0], limit)
}

// hydrate attaches conversation titles and, when requested, the full entry
// to a result page. Enrichment failures degrade the result, never fail it.
func (sr *searchReaderOrchestrator) hydrate(ctx context.Context, page []model.SearchResult, kind string, includeEntry bool) {
	titles := make(map[uuid.UUID]*string)
	for i := range page {
		if page[i].Kind == "" {
			page[i].Kind = kind
		}

		title, seen := titles[page[i].ConversationUID]
		if !seen {
			if conversation, _, err := sr.conversations.GetConversation(ctx, page[i].ConversationUID); err == nil {
				title = &conversation.Title
			}
			titles[page[i].ConversationUID] = title
		}
		page[i].ConversationTitle = title

		if includeEntry && sr.entries != nil {
			if entry, err := sr.entries.GetEntry(ctx, page[i].EntryUID); err == nil {
				page[i].Entry = entry
			} else {
				slog.WarnContext(ctx, "failed to hydrate search result entry",
					"error", err,
					"entry_uid", page[i].EntryUID,
				)
			}
		}
	}
}

// bestPerConversation keeps the highest-ranked result of each conversation.
// The input is already ordered by score.
func bestPerConversation(results []model.SearchResult) []model.SearchResult {
	seen := make(map[uuid.UUID]bool, len(results))
	var kept []model.SearchResult
	for _, result := range results {
		if seen[result.ConversationUID] {
			continue
		}
		seen[result.ConversationUID] = true
		kept = append(kept, result)
	}
	return kept
}

// paginateSearchResults applies the after-cursor and limit to the ranked
// results. A vanished anchor restarts from the top of the ranking.
func paginateSearchResults(results []model.SearchResult, after *string, limit int) ([]model.SearchResult, string, error) {
	position, err := cursor.DecodePtr(after)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if position != "" {
		for i, result := range results {
			if result.EntryUID.String() == position {
				start = i + 1
				break
			}
		}
	}

	end := start + limit
	if end > len(results) {
		end = len(results)
	}
	page := make([]model.SearchResult, end-start)
	copy(page, results[start:end])

	nextPosition := ""
	if end < len(results) && len(page) > 0 {
		nextPosition = page[len(page)-1].EntryUID.String()
	}
	return page, nextPosition, nil
}
