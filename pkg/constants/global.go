// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package constants defines global constants used throughout the memory service.
package constants

// Service constants
const (
	// ServiceName is the name of this service
	ServiceName = "memory"
)

// HTTP header constants
const (
	// RequestIDHeader is the HTTP header name for request ID
	RequestIDHeader = "X-Request-Id"

	// AuthorizationHeader is the header name for the authorization
	AuthorizationHeader = "authorization"

	// XOnBehalfOfHeader is the header name for the on behalf of principal
	XOnBehalfOfHeader = "x-on-behalf-of"
)

// Environment variables
const (
	// EnvNATSURL is the environment variable for NATS server URL
	EnvNATSURL = "NATS_URL"
	// EnvNATSCredentials is the environment variable for NATS credentials
	EnvNATSCredentials = "NATS_CREDENTIALS"
	// EnvConfigFile is the environment variable for the YAML config file path
	EnvConfigFile = "MEMORY_CONFIG_FILE"
)

// Resource type constants for domain resolution
const (
	// ResourceTypeConversation represents a conversation resource
	ResourceTypeConversation = "conversation"
	// ResourceTypeEntry represents an entry resource
	ResourceTypeEntry = "entry"
	// ResourceTypeMembership represents a conversation membership resource
	ResourceTypeMembership = "membership"
	// ResourceTypeTransfer represents an ownership transfer resource
	ResourceTypeTransfer = "ownership_transfer"
	// ResourceTypeAttachment represents an attachment resource
	ResourceTypeAttachment = "attachment"
)
