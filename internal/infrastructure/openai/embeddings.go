// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package openai implements the embedding provider boundary against an
// OpenAI-compatible embeddings endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/linuxfoundation/lfx-v2-memory-service/internal/domain/port"
	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
	"github.com/linuxfoundation/lfx-v2-memory-service/pkg/httpclient"
)

const (
	// defaultBaseURL is the hosted endpoint; self-hosted compatible
	// providers override it.
	defaultBaseURL = "https://api.openai.com/v1"

	// defaultModel is used when the configuration names none.
	defaultModel = "text-embedding-3-small"
)

// Config configures the embedding provider. An empty api key disables the
// provider; the search boundary then serves fulltext only.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// EmbeddingClient calls the embeddings endpoint through the shared retrying
// HTTP client.
type EmbeddingClient struct {
	config Config
	client *httpclient.Client
}

var _ port.EmbeddingProvider = (*EmbeddingClient)(nil)

// NewEmbeddingClient creates the provider with defaults applied.
func NewEmbeddingClient(config Config) *EmbeddingClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Model == "" {
		config.Model = defaultModel
	}
	return &EmbeddingClient{
		config: config,
		client: httpclient.NewClient(httpclient.DefaultConfig()),
	}
}

// Enabled reports whether credentials are configured.
func (c *EmbeddingClient) Enabled() bool {
	return c.config.APIKey != ""
}

// Model names the embedding model recorded with stored vectors.
func (c *EmbeddingClient) Model() string {
	return c.config.Model
}

// embeddingRequest is the wire request of the embeddings endpoint.
type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embeddingResponse is the wire response of the embeddings endpoint.
type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed generates one vector per input text, in input order.
func (c *EmbeddingClient) Embed(ctx context.Context, inputs []string) ([][]float64, error) {
	if !c.Enabled() {
		return nil, errs.NewServiceUnavailable("embedding provider is not configured")
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(embeddingRequest{
		Model: c.config.Model,
		Input: inputs,
	})
	if err != nil {
		return nil, errs.NewUnexpected("failed to encode embedding request", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/embeddings"
	response, err := c.client.Request(ctx, http.MethodPost, url, bytes.NewReader(payload), map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
		"Content-Type":  "application/json",
	})
	if err != nil {
		return nil, errs.NewServiceUnavailable("embedding request failed", err)
	}

	var decoded embeddingResponse
	if err := json.Unmarshal(response.Body, &decoded); err != nil {
		return nil, errs.NewUnexpected("failed to decode embedding response", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, errs.NewUnexpected(fmt.Sprintf(
			"embedding response carries %d vectors for %d inputs", len(decoded.Data), len(inputs)))
	}

	vectors := make([][]float64, len(inputs))
	for _, item := range decoded.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, errs.NewUnexpected("embedding response carries an out-of-range index")
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
