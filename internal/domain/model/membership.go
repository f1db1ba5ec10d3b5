// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ConversationMembership is an access grant on a conversation group.
// Memberships are hard-deleted; every mutation emits an audit record.
type ConversationMembership struct {
	GroupUID    uuid.UUID   `json:"group_uid"`
	UserID      string      `json:"user_id"`
	AccessLevel AccessLevel `json:"access_level"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BuildIndexKey derives the KV-safe key component for the membership's user.
func (m *ConversationMembership) BuildIndexKey(ctx context.Context) string {
	key := HashIdentity(m.UserID)

	slog.DebugContext(ctx, "membership index key built",
		"group_uid", m.GroupUID,
		"key", key,
	)

	return key
}

// AuditAction is the kind of membership mutation being audited.
type AuditAction string

// Audit actions for membership and ownership mutations
const (
	AuditActionAdd      AuditAction = "add"
	AuditActionUpdate   AuditAction = "update"
	AuditActionRemove   AuditAction = "remove"
	AuditActionTransfer AuditAction = "transfer"
)

// MembershipAudit is the structured audit record emitted for every
// membership add/update/remove and every ownership transfer.
type MembershipAudit struct {
	Action       AuditAction `json:"action"`
	Actor        string      `json:"actor"`
	Conversation uuid.UUID   `json:"conversation"`
	Target       string      `json:"target,omitempty"`
	From         string      `json:"from,omitempty"`
	To           string      `json:"to,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// String renders the canonical audit line.
func (a *MembershipAudit) String() string {
	line := fmt.Sprintf("action=%s actor=%s conversation=%s", a.Action, a.Actor, a.Conversation)
	if a.Target != "" {
		line += fmt.Sprintf(" target=%s", a.Target)
	}
	if a.From != "" {
		line += fmt.Sprintf(" from=%s", a.From)
	}
	if a.To != "" {
		line += fmt.Sprintf(" to=%s", a.To)
	}
	return line
}

// LogAttrs returns the audit record as slog attributes.
func (a *MembershipAudit) LogAttrs() []any {
	attrs := []any{
		"audit_action", string(a.Action),
		"audit_actor", a.Actor,
		"audit_conversation", a.Conversation.String(),
	}
	if a.Target != "" {
		attrs = append(attrs, "audit_target", a.Target)
	}
	if a.From != "" {
		attrs = append(attrs, "audit_from", a.From)
	}
	if a.To != "" {
		attrs = append(attrs, "audit_to", a.To)
	}
	return attrs
}
