// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// response is the front-door reply envelope. Exactly one of Data and Error
// is set.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

// errorBody is the wire form of a failed request.
type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	// Code is a machine-stable conflict code, e.g. TRANSFER_ALREADY_PENDING.
	Code string `json:"code,omitempty"`
	// ExistingID names the row holding the violated constraint, when known.
	ExistingID string `json:"existing_id,omitempty"`
}

// Error taxonomy names on the wire
const (
	errorTypeNotFound    = "not_found"
	errorTypeForbidden   = "forbidden"
	errorTypeValidation  = "validation"
	errorTypeConflict    = "conflict"
	errorTypeUnavailable = "unavailable"
	errorTypeInternal    = "internal"
)

// respond wraps a successful result into the reply envelope.
func respond(ctx context.Context, data any) []byte {
	encoded, err := json.Marshal(data)
	if err != nil {
		return respondError(ctx, errs.NewUnexpected("failed to encode response", err))
	}
	reply, err := json.Marshal(response{Success: true, Data: encoded})
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode response envelope", "error", err)
		return []byte(`{"success":false,"error":{"type":"internal","message":"failed to encode response"}}`)
	}
	return reply
}

// respondError translates a domain error into the reply envelope.
func respondError(ctx context.Context, err error) []byte {
	body := errorBody{Type: errorTypeInternal, Message: err.Error()}

	var (
		notFound    errs.NotFound
		forbidden   errs.Forbidden
		validation  errs.Validation
		conflict    errs.Conflict
		unavailable errs.ServiceUnavailable
	)
	switch {
	case errors.As(err, &notFound):
		body.Type = errorTypeNotFound
	case errors.As(err, &forbidden):
		body.Type = errorTypeForbidden
	case errors.As(err, &validation):
		body.Type = errorTypeValidation
	case errors.As(err, &conflict):
		body.Type = errorTypeConflict
		body.Code = conflict.Code
		body.ExistingID = conflict.ExistingID
	case errors.As(err, &unavailable):
		body.Type = errorTypeUnavailable
	}

	if body.Type == errorTypeInternal {
		slog.ErrorContext(ctx, "request failed", "error", err)
	} else {
		slog.DebugContext(ctx, "request rejected", "error", err, "error_type", body.Type)
	}

	reply, marshalErr := json.Marshal(response{Success: false, Error: &body})
	if marshalErr != nil {
		slog.ErrorContext(ctx, "failed to encode error envelope", "error", marshalErr)
		return []byte(`{"success":false,"error":{"type":"internal","message":"failed to encode error"}}`)
	}
	return reply
}
