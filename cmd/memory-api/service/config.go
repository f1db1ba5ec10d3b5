// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package service implements the memory service front door: request
// envelopes, principal resolution and one handler per NATS subject.
package service

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration. The YAML decode is strict, so
// an unrecognized option fails startup instead of being silently ignored.
type Config struct {
	NATS       NATSConfig        `yaml:"nats"`
	Auth       AuthConfig        `yaml:"auth"`
	APIKeys    map[string]string `yaml:"api_keys"`
	Encryption EncryptionConfig  `yaml:"encryption"`
	Embeddings EmbeddingsConfig  `yaml:"embeddings"`
	Resumer    ResumerConfig     `yaml:"resumer"`
	Worker     WorkerConfig      `yaml:"worker"`
}

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxReconnect  int           `yaml:"max_reconnect"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

// AuthConfig selects and configures the authenticator.
type AuthConfig struct {
	// Source is "jwt" or "mock".
	Source   string   `yaml:"source"`
	Issuer   string   `yaml:"issuer"`
	JWKSURL  string   `yaml:"jwks_url"`
	Audience string   `yaml:"audience"`
	Admins   []string `yaml:"admins"`

	// MockLocalPrincipal short-circuits JWT validation for local
	// development. Never set in production.
	MockLocalPrincipal string `yaml:"mock_local_principal"`
}

// EncryptionConfig configures the at-rest encryption codec. An empty key
// disables encryption.
type EncryptionConfig struct {
	ProviderID string `yaml:"provider_id"`
	// Key is the base64-encoded AES key sealing new values.
	Key string `yaml:"key"`
	// Previous lists retired keys kept readable during rotation.
	Previous []EncryptionKey `yaml:"previous"`
}

// EncryptionKey is one retired provider in the rotation chain.
type EncryptionKey struct {
	ID  string `yaml:"id"`
	Key string `yaml:"key"`
}

// EmbeddingsConfig configures the embedding provider. An empty api key
// disables semantic search and vector indexing.
type EmbeddingsConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// ResumerConfig configures the response resumer.
type ResumerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	AdvertisedAddress string `yaml:"advertised_address"`
	SpoolDir          string `yaml:"spool_dir"`
}

// WorkerConfig configures the background task worker.
type WorkerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	GroupRetention time.Duration `yaml:"group_retention"`
	Parallelism    int           `yaml:"parallelism"`
}

// defaultConfig returns the configuration used when no file is given.
func defaultConfig() Config {
	return Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			Timeout:       10 * time.Second,
			MaxReconnect:  3,
			ReconnectWait: 2 * time.Second,
		},
		Auth: AuthConfig{
			Source: "jwt",
		},
	}
}

// LoadConfig builds the configuration from the optional YAML file and the
// environment. Environment values override file values so deployments can
// keep secrets out of the file.
func LoadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening config file: %w", err)
		}
		defer file.Close()

		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(&config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvOverrides merges recognized environment variables over the file
// values.
func applyEnvOverrides(config *Config) error {
	if v := os.Getenv("NATS_URL"); v != "" {
		config.NATS.URL = v
	}
	if v := os.Getenv("NATS_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid NATS_TIMEOUT %q: %w", v, err)
		}
		config.NATS.Timeout = d
	}
	if v := os.Getenv("NATS_MAX_RECONNECT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NATS_MAX_RECONNECT %q: %w", v, err)
		}
		config.NATS.MaxReconnect = n
	}
	if v := os.Getenv("NATS_RECONNECT_WAIT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid NATS_RECONNECT_WAIT %q: %w", v, err)
		}
		config.NATS.ReconnectWait = d
	}

	if v := os.Getenv("AUTH_SOURCE"); v != "" {
		config.Auth.Source = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		config.Auth.Issuer = v
	}
	if v := os.Getenv("JWKS_URL"); v != "" {
		config.Auth.JWKSURL = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		config.Auth.Audience = v
	}
	if v := os.Getenv("JWT_ADMIN_USERS"); v != "" {
		config.Auth.Admins = splitAndTrim(v)
	}
	if v := os.Getenv("MOCK_LOCAL_PRINCIPAL"); v != "" {
		config.Auth.MockLocalPrincipal = v
	}

	if v := os.Getenv("ENCRYPTION_PROVIDER_ID"); v != "" {
		config.Encryption.ProviderID = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		config.Encryption.Key = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		config.Embeddings.APIKey = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		config.Embeddings.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		config.Embeddings.Model = v
	}

	if v := os.Getenv("RESUMER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RESUMER_ENABLED %q: %w", v, err)
		}
		config.Resumer.Enabled = enabled
	}
	if v := os.Getenv("RESUMER_ADVERTISED_ADDRESS"); v != "" {
		config.Resumer.AdvertisedAddress = v
	}
	if v := os.Getenv("RESUMER_SPOOL_DIR"); v != "" {
		config.Resumer.SpoolDir = v
	}
	return nil
}

// splitAndTrim splits a comma-separated list, dropping empty items.
func splitAndTrim(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
