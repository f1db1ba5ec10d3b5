// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package mock

import (
	"context"
	"log/slog"
	"sync"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
)

// PublishedMessage records one message handed to the mock publisher.
type PublishedMessage struct {
	Subject string
	Message any
}

// MockMessagePublisher is a mock implementation of the MessagePublisher
// interface that records what it publishes.
type MockMessagePublisher struct {
	mu      sync.Mutex
	indexer []PublishedMessage
	audit   []PublishedMessage
}

// Ensure MockMessagePublisher implements the MessagePublisher interface
var _ port.MessagePublisher = (*MockMessagePublisher)(nil)

// NewMockMessagePublisher creates a new mock publisher for testing
func NewMockMessagePublisher() *MockMessagePublisher {
	return &MockMessagePublisher{}
}

// Indexer records an indexer message.
func (m *MockMessagePublisher) Indexer(ctx context.Context, subject string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexer = append(m.indexer, PublishedMessage{Subject: subject, Message: message})
	slog.InfoContext(ctx, "mock indexer message published", "subject", subject)
	return nil
}

// Audit records an audit message.
func (m *MockMessagePublisher) Audit(ctx context.Context, subject string, message any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.audit = append(m.audit, PublishedMessage{Subject: subject, Message: message})
	slog.InfoContext(ctx, "mock audit message published", "subject", subject)
	return nil
}

// IndexerMessages returns the indexer messages published so far.
func (m *MockMessagePublisher) IndexerMessages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.indexer...)
}

// AuditMessages returns the audit messages published so far.
func (m *MockMessagePublisher) AuditMessages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.audit...)
}
