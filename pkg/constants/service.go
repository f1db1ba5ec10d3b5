// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package constants

import "time"

// Pagination and query limits
const (
	// DefaultPageLimit applies when a caller omits the limit
	DefaultPageLimit = 50

	// MaxPageLimit caps any caller-supplied limit
	MaxPageLimit = 500

	// TitleSearchOverFetchFactor bounds the decrypt-then-filter over-fetch
	// when searching encrypted conversation titles
	TitleSearchOverFetchFactor = 5

	// TitleSearchOverFetchCap is the absolute over-fetch ceiling
	TitleSearchOverFetchCap = 1000

	// AutoCreateTitleMaxLen truncates titles inferred from the first
	// HISTORY entry on conversation auto-create
	AutoCreateTitleMaxLen = 40
)

// Cache lifetimes
const (
	// MemoryCacheTTL bounds how long a cached latest-epoch result can
	// serve reads without recomputation
	MemoryCacheTTL = 24 * time.Hour
)

// Response resumer timing
const (
	// LocatorTTL is how long a published locator stays valid without refresh
	LocatorTTL = 10 * time.Second

	// LocatorRefreshInterval is how often an open recording re-advertises
	LocatorRefreshInterval = 5 * time.Second

	// CancelWaitTimeout bounds how long Cancel polls for the recording to close
	CancelWaitTimeout = 30 * time.Second

	// SpoolRetention is how old an orphaned spool file must be before the
	// startup reaper deletes it
	SpoolRetention = 30 * time.Minute
)
