// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package httpclient provides a generic HTTP client with retry and
// middleware support for outbound provider calls.
package httpclient

import "time"

// Config holds the HTTP client configuration.
type Config struct {
	// Timeout is the per-request timeout.
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration

	// RetryBackoff enables exponential backoff with jitter.
	RetryBackoff bool

	// MaxDelay caps the backoff delay. Defaults to 30s when zero.
	MaxDelay time.Duration
}

// DefaultConfig returns a configuration suitable for provider API calls.
func DefaultConfig() Config {
	return Config{
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		RetryDelay:   1 * time.Second,
		RetryBackoff: true,
		MaxDelay:     30 * time.Second,
	}
}
