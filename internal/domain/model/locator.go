// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

// ResponseLocator advertises which instance currently owns an in-flight
// recording. Published to the shared KV with a short TTL while the
// recording is open.
type ResponseLocator struct {
	// Address is the externally reachable host:port of the owning instance.
	Address string `json:"address"`

	// SpoolName is the random name of the local spool file, used by the
	// reaper to tell live spools from orphans.
	SpoolName string `json:"spool_name"`
}
