// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/constants"
)

// MessageAction is a type for the action of a published message
type MessageAction string

// MessageAction constants for published messages
const (
	// ActionCreated is the action for a resource creation message
	ActionCreated MessageAction = "created"
	// ActionUpdated is the action for a resource update message
	ActionUpdated MessageAction = "updated"
	// ActionDeleted is the action for a resource deletion message
	ActionDeleted MessageAction = "deleted"
)

// IndexerMessage is a NATS message schema for entry indexing notifications.
// It is consumed by external indexing services to maintain search indexes.
type IndexerMessage struct {
	Action  MessageAction     `json:"action"`
	Headers map[string]string `json:"headers"`
	Data    any               `json:"data"`
	// Tags is a list of tags to be set on the indexed resource for search
	Tags []string `json:"tags"`
}

// Build constructs an indexer message with proper context extraction and data marshaling
func (g *IndexerMessage) Build(ctx context.Context, input any) (*IndexerMessage, error) {
	// Extract headers from context for authorization propagation
	headers := make(map[string]string)
	if authorization, ok := ctx.Value(constants.AuthorizationContextID).(string); ok {
		headers[constants.AuthorizationHeader] = authorization
	}
	if principal, ok := ctx.Value(constants.PrincipalContextID).(string); ok {
		headers[constants.XOnBehalfOfHeader] = principal
	}
	g.Headers = headers

	var payload any

	switch g.Action {
	case ActionCreated, ActionUpdated:
		// For create/update actions, marshal and unmarshal to get the
		// map[string]any the indexer expects
		data, err := json.Marshal(input)
		if err != nil {
			slog.ErrorContext(ctx, "error marshalling data into JSON", "error", err)
			return nil, err
		}
		var jsonData map[string]any
		if err := json.Unmarshal(data, &jsonData); err != nil {
			slog.ErrorContext(ctx, "error unmarshalling data into map", "error", err)
			return nil, err
		}
		payload = jsonData
	case ActionDeleted:
		// Delete actions carry only the resource id
		payload = input
	}
	g.Data = payload

	return g, nil
}
