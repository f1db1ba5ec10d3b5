// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", config.NATS.URL)
	assert.Equal(t, 10*time.Second, config.NATS.Timeout)
	assert.Equal(t, "jwt", config.Auth.Source)
	assert.False(t, config.Resumer.Enabled)
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfigFile(t, `
nats:
  url: nats://nats.example.com:4222
  timeout: 5s
auth:
  source: mock
api_keys:
  key-1: agent-1
encryption:
  provider_id: aesgcm-v2
  key: c2VjcmV0LWtleS1tYXRlcmlhbC0zMmJ5dGVzISE=
  previous:
    - id: aesgcm-v1
      key: b2xkLWtleS1tYXRlcmlhbC0zMi1ieXRlcy1ohISE=
resumer:
  enabled: true
  advertised_address: memory-api-0:8080
worker:
  poll_interval: 30s
  parallelism: 8
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.example.com:4222", config.NATS.URL)
	assert.Equal(t, 5*time.Second, config.NATS.Timeout)
	assert.Equal(t, "mock", config.Auth.Source)
	assert.Equal(t, map[string]string{"key-1": "agent-1"}, config.APIKeys)
	assert.Equal(t, "aesgcm-v2", config.Encryption.ProviderID)
	require.Len(t, config.Encryption.Previous, 1)
	assert.Equal(t, "aesgcm-v1", config.Encryption.Previous[0].ID)
	assert.True(t, config.Resumer.Enabled)
	assert.Equal(t, "memory-api-0:8080", config.Resumer.AdvertisedAddress)
	assert.Equal(t, 30*time.Second, config.Worker.PollInterval)
	assert.Equal(t, 8, config.Worker.Parallelism)
}

func TestLoadConfig_UnknownOptionIsRejected(t *testing.T) {
	path := writeConfigFile(t, `
nats:
  url: nats://localhost:4222
datastore_kind: postgres
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "datastore_kind")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
nats:
  url: nats://from-file:4222
resumer:
  enabled: false
`)

	t.Setenv("NATS_URL", "nats://from-env:4222")
	t.Setenv("RESUMER_ENABLED", "true")
	t.Setenv("RESUMER_ADVERTISED_ADDRESS", "memory-api-1:8080")
	t.Setenv("JWT_ADMIN_USERS", "ops, sre")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nats://from-env:4222", config.NATS.URL)
	assert.True(t, config.Resumer.Enabled)
	assert.Equal(t, "memory-api-1:8080", config.Resumer.AdvertisedAddress)
	assert.Equal(t, []string{"ops", "sre"}, config.Auth.Admins)
}

func TestLoadConfig_InvalidEnvValue(t *testing.T) {
	t.Setenv("NATS_TIMEOUT", "not-a-duration")

	_, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NATS_TIMEOUT")
}
