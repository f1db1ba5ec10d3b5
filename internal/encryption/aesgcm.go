// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// AESGCMProvider encrypts values with AES-256-GCM. A fresh random nonce is
// drawn per value and travels in the envelope header.
type AESGCMProvider struct {
	id   string
	aead cipher.AEAD
}

// NewAESGCMProvider builds a provider from a base64-encoded 32-byte key.
// The id names the key in envelopes; rotating keys means registering a new
// provider under a new id and keeping the old one in the read chain.
func NewAESGCMProvider(id, base64Key string) (*AESGCMProvider, error) {
	if id == "" {
		return nil, errs.NewValidation("encryption provider id is required")
	}

	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, errs.NewValidation("encryption key is not valid base64", err)
	}
	if len(key) != 32 {
		return nil, errs.NewValidation(fmt.Sprintf("encryption key must be 32 bytes, got %d", len(key)))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.NewUnexpected("initializing cipher failed", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errs.NewUnexpected("initializing GCM failed", err)
	}

	return &AESGCMProvider{id: id, aead: aead}, nil
}

// ID implements Provider.
func (p *AESGCMProvider) ID() string {
	return p.id
}

// Encrypt implements Provider.
func (p *AESGCMProvider) Encrypt(plaintext []byte) ([]byte, []byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, errs.NewUnexpected("drawing nonce failed", err)
	}
	return nonce, p.aead.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt implements Provider.
func (p *AESGCMProvider) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != p.aead.NonceSize() {
		return nil, errs.NewUnexpected(fmt.Sprintf("unexpected nonce size %d", len(nonce)))
	}
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}
