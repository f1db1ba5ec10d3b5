// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package model defines the domain models and entities for the memory service.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AccessLevel is a membership access level on a conversation group.
// Levels form a strict lattice: reader < writer < manager < owner.
type AccessLevel string

// Access level constants, ordered from weakest to strongest
const (
	AccessReader  AccessLevel = "reader"
	AccessWriter  AccessLevel = "writer"
	AccessManager AccessLevel = "manager"
	AccessOwner   AccessLevel = "owner"
)

// accessRanks maps levels onto the lattice order.
var accessRanks = map[AccessLevel]int{
	AccessReader:  1,
	AccessWriter:  2,
	AccessManager: 3,
	AccessOwner:   4,
}

// Rank returns the position of the level in the lattice, 0 for unknown levels.
func (l AccessLevel) Rank() int {
	return accessRanks[l]
}

// Valid reports whether the level is one of the four lattice levels.
func (l AccessLevel) Valid() bool {
	return l.Rank() > 0
}

// AtLeast reports whether the level grants at least the given level.
func (l AccessLevel) AtLeast(min AccessLevel) bool {
	return l.Rank() >= min.Rank() && min.Rank() > 0
}

// Principal identifies a caller: a user (OIDC subject), an agent (api key
// mapped to a client id), or both when an agent acts on behalf of a user.
type Principal struct {
	// UserID is the OIDC subject, empty for pure agent callers.
	UserID string `json:"user_id,omitempty"`

	// ClientID is the agent identity derived from an api key, empty for
	// plain user callers.
	ClientID string `json:"client_id,omitempty"`

	// Admin marks callers authenticated with an admin credential. Admin
	// operations bypass membership checks.
	Admin bool `json:"admin,omitempty"`
}

// IsUser reports whether the principal carries a user identity.
func (p Principal) IsUser() bool {
	return p.UserID != ""
}

// IsAgent reports whether the principal carries an agent identity.
func (p Principal) IsAgent() bool {
	return p.ClientID != ""
}

// HashIdentity derives a fixed KV-safe key component from a free-form
// identity string (OIDC subjects and client ids may contain characters that
// are not valid in KV keys).
func HashIdentity(identity string) string {
	normalized := strings.TrimSpace(identity)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
