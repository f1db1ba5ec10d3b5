// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

// CachedMemoryEntries is the memory-cache value for one
// (conversation, client) pair: the latest-epoch MEMORY entries in group
// order plus the epoch they share. Nil epoch means the client has no
// memory entries along the ancestry.
type CachedMemoryEntries struct {
	Entries []Entry `json:"entries" msgpack:"entries"`
	Epoch   *int64  `json:"epoch,omitempty" msgpack:"epoch,omitempty"`
}
