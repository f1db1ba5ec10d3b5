// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package port

import "context"

// MessagePublisher publishes service messages to the messaging layer.
type MessagePublisher interface {
	// Indexer publishes indexer messages consumed by external search and
	// discovery services.
	Indexer(ctx context.Context, subject string, message any) error

	// Audit publishes structured audit records for membership and
	// ownership mutations.
	Audit(ctx context.Context, subject string, message any) error
}
