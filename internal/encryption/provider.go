// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package encryption

import (
	"context"
	"log/slog"

	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Provider encrypts and decrypts raw values. Implementations are safe for
// concurrent use.
type Provider interface {
	// ID identifies the provider inside envelopes it produced.
	ID() string

	// Encrypt seals a plaintext and returns the nonce and ciphertext.
	Encrypt(plaintext []byte) (nonce, ciphertext []byte, err error)

	// Decrypt opens a ciphertext produced by this provider.
	Decrypt(nonce, ciphertext []byte) ([]byte, error)
}

// Codec applies envelope encryption with a primary provider for writes and
// a provider chain for reads. A nil codec, or one with no primary, passes
// values through untouched.
type Codec struct {
	primary Provider
	chain   []Provider
}

// NewCodec builds a codec. The primary provider seals new values; every
// provider in the chain, primary included, can open stored ones.
func NewCodec(primary Provider, chain ...Provider) *Codec {
	all := make([]Provider, 0, len(chain)+1)
	if primary != nil {
		all = append(all, primary)
	}
	all = append(all, chain...)
	return &Codec{primary: primary, chain: all}
}

// NewDisabledCodec builds a pass-through codec for deployments with
// at-rest encryption turned off.
func NewDisabledCodec() *Codec {
	return &Codec{}
}

// Enabled reports whether new values are encrypted.
func (c *Codec) Enabled() bool {
	return c != nil && c.primary != nil
}

// Encrypt seals a value into an envelope with the primary provider.
// Pass-through when disabled.
func (c *Codec) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if !c.Enabled() {
		return plaintext, nil
	}

	nonce, ciphertext, err := c.primary.Encrypt(plaintext)
	if err != nil {
		slog.ErrorContext(ctx, "encrypting value failed",
			"error", err,
			"provider", c.primary.ID(),
		)
		return nil, err
	}
	return SealEnvelope(c.primary.ID(), nonce, ciphertext)
}

// Decrypt opens a stored value. Non-enveloped values are returned as-is so
// data written before encryption was enabled stays readable. Enveloped
// values are routed by provider id; an unknown id walks the whole chain to
// tolerate renamed providers during rotation.
func (c *Codec) Decrypt(ctx context.Context, data []byte) ([]byte, error) {
	if !IsEnveloped(data) {
		return data, nil
	}

	providerID, nonce, ciphertext, err := OpenEnvelope(data)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, provider := range c.chain {
		if provider.ID() != providerID {
			continue
		}
		plaintext, decErr := provider.Decrypt(nonce, ciphertext)
		if decErr == nil {
			return plaintext, nil
		}
		lastErr = decErr
	}
	for _, provider := range c.chain {
		if provider.ID() == providerID {
			continue
		}
		plaintext, decErr := provider.Decrypt(nonce, ciphertext)
		if decErr == nil {
			return plaintext, nil
		}
		if lastErr == nil {
			lastErr = decErr
		}
	}

	slog.ErrorContext(ctx, "no provider could decrypt value",
		"provider", providerID,
		"chain_size", len(c.chain),
	)
	if lastErr != nil {
		return nil, errs.NewUnexpected("decrypting value failed", lastErr)
	}
	return nil, errs.NewUnexpected("no registered provider matches envelope")
}

// EncryptString seals a string value.
func (c *Codec) EncryptString(ctx context.Context, plaintext string) ([]byte, error) {
	return c.Encrypt(ctx, []byte(plaintext))
}

// DecryptString opens a stored value as a string.
func (c *Codec) DecryptString(ctx context.Context, data []byte) (string, error) {
	plaintext, err := c.Decrypt(ctx, data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
