// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/model"
	"github.com/linuxfoundation/lfx-v2-memory-service/internal/infrastructure/mock"
)

// testEnv wires every orchestrator against one shared mock repository.
type testEnv struct {
	repo      *mock.MockRepository
	publisher *mock.MockMessagePublisher

	conversationReader ConversationReader
	conversationWriter ConversationWriter
	entryReader        EntryReader
	entryWriter        EntryWriter
	membershipWriter   MembershipWriter
	transferWriter     TransferWriter
	searchReader       SearchReader
}

func newTestEnv() *testEnv {
	repo := mock.NewMockRepository()
	publisher := mock.NewMockMessagePublisher()

	return &testEnv{
		repo:      repo,
		publisher: publisher,
		conversationReader: NewConversationReaderOrchestrator(
			WithConversationStorage(repo),
			WithMembershipReader(repo),
			WithLocatorReader(repo),
		),
		conversationWriter: NewConversationWriterOrchestrator(
			WithConversationWriterStorage(repo),
			WithConversationWriterMemberships(repo),
			WithConversationWriterEntries(repo),
			WithConversationWriterTransfers(repo),
			WithConversationWriterPublisher(publisher),
		),
		entryReader: NewEntryReaderOrchestrator(
			WithEntryStorage(repo),
			WithEntryConversationReader(repo),
			WithEntryMembershipReader(repo),
			WithMemoryCache(repo),
		),
		entryWriter: NewEntryWriterOrchestrator(
			WithEntryWriterStorage(repo),
			WithEntryWriterConversations(repo),
			WithEntryWriterMemberships(repo),
			WithEntryWriterCache(repo),
			WithEntryWriterTasks(repo),
			WithEntryWriterPublisher(publisher),
		),
		membershipWriter: NewMembershipWriterOrchestrator(
			WithMembershipStorage(repo),
			WithMembershipConversations(repo),
			WithMembershipTransfers(repo),
			WithMembershipPublisher(publisher),
		),
		transferWriter: NewTransferWriterOrchestrator(
			WithTransferStorage(repo),
			WithTransferConversations(repo),
			WithTransferMemberships(repo),
			WithTransferPublisher(publisher),
		),
		searchReader: NewSearchReaderOrchestrator(
			WithSearchBackend(repo),
			WithSearchEmbeddings(mock.NewMockEmbeddingProvider(false)),
			WithSearchMemberships(repo),
			WithSearchConversations(repo),
			WithSearchEntries(repo),
		),
	}
}

// userPrincipal builds a plain user principal.
func userPrincipal(userID string) model.Principal {
	return model.Principal{UserID: userID}
}

// agentPrincipal builds an agent acting on behalf of a user.
func agentPrincipal(userID, clientID string) model.Principal {
	return model.Principal{UserID: userID, ClientID: clientID}
}

// createConversation creates a root conversation owned by the given user.
func (env *testEnv) createConversation(t *testing.T, owner, title string) uuid.UUID {
	t.Helper()
	detail, _, err := env.conversationWriter.CreateConversation(context.Background(), userPrincipal(owner), title, nil)
	require.NoError(t, err)
	return detail.UID
}

// appendHistory appends one HISTORY entry and returns its id.
func (env *testEnv) appendHistory(t *testing.T, principal model.Principal, conversationUID uuid.UUID, text string) uuid.UUID {
	t.Helper()
	indexed := text
	created, err := env.entryWriter.AppendEntries(context.Background(), principal, conversationUID, []model.CreateEntryRequest{{
		Channel:        model.ChannelHistory,
		ContentType:    "chat-items/v1",
		Content:        json.RawMessage(fmt.Sprintf(`[{"text":%q}]`, text)),
		IndexedContent: &indexed,
	}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0].UID
}

// appendMemory appends one MEMORY entry at the given epoch and returns its id.
func (env *testEnv) appendMemory(t *testing.T, principal model.Principal, conversationUID uuid.UUID, epoch int64, items string) uuid.UUID {
	t.Helper()
	created, err := env.entryWriter.AppendEntries(context.Background(), principal, conversationUID, []model.CreateEntryRequest{{
		Channel:     model.ChannelMemory,
		ContentType: "memory-items/v1",
		Content:     json.RawMessage(items),
		Epoch:       &epoch,
	}})
	require.NoError(t, err)
	require.Len(t, created, 1)
	return created[0].UID
}

// entryUIDs projects a page onto entry ids for order assertions.
func entryUIDs(entries []model.Entry) []uuid.UUID {
	uids := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		uids = append(uids, entry.UID)
	}
	return uids
}
