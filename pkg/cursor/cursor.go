// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package cursor encodes and decodes opaque pagination cursors.
package cursor

import (
	"github.com/akamensky/base58"

	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Encode wraps a storage-level position into an opaque cursor string.
func Encode(position string) string {
	if position == "" {
		return ""
	}
	return base58.Encode([]byte(position))
}

// EncodePtr returns nil for an empty position, otherwise a pointer to the
// encoded cursor. List responses use nil to signal "no more pages".
func EncodePtr(position string) *string {
	if position == "" {
		return nil
	}
	encoded := Encode(position)
	return &encoded
}

// Decode unwraps an opaque cursor back into a storage-level position.
func Decode(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	decoded, err := base58.Decode(cursor)
	if err != nil {
		return "", errors.NewValidation("malformed pagination cursor", err)
	}
	return string(decoded), nil
}

// DecodePtr decodes an optional cursor, mapping nil to the empty position.
func DecodePtr(cursor *string) (string, error) {
	if cursor == nil {
		return "", nil
	}
	return Decode(*cursor)
}
