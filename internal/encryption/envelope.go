// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package encryption implements at-rest encryption of entry content and
// conversation titles. Values are framed in an envelope so readers can
// route ciphertext to the provider that produced it, which tolerates key
// rotation across a provider chain.
package encryption

import (
	"bytes"
	"fmt"

	errs "github.com/linuxfoundation/lfx-v2-memory-service/pkg/errors"
)

// Envelope layout:
//
//	magic "MSEH" | 1-byte provider id length | provider id |
//	1-byte nonce length | nonce | ciphertext
var envelopeMagic = []byte("MSEH")

const maxHeaderFieldLen = 255

// SealEnvelope frames provider output into the stored representation.
func SealEnvelope(providerID string, nonce, ciphertext []byte) ([]byte, error) {
	if len(providerID) == 0 || len(providerID) > maxHeaderFieldLen {
		return nil, errs.NewUnexpected(fmt.Sprintf("invalid provider id length %d", len(providerID)))
	}
	if len(nonce) > maxHeaderFieldLen {
		return nil, errs.NewUnexpected(fmt.Sprintf("invalid nonce length %d", len(nonce)))
	}

	out := make([]byte, 0, len(envelopeMagic)+2+len(providerID)+len(nonce)+len(ciphertext))
	out = append(out, envelopeMagic...)
	out = append(out, byte(len(providerID)))
	out = append(out, providerID...)
	out = append(out, byte(len(nonce)))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// OpenEnvelope splits a stored value back into its provider id, nonce and
// ciphertext.
func OpenEnvelope(data []byte) (providerID string, nonce, ciphertext []byte, err error) {
	if !IsEnveloped(data) {
		return "", nil, nil, errs.NewUnexpected("value is not an encryption envelope")
	}

	rest := data[len(envelopeMagic):]
	if len(rest) < 1 {
		return "", nil, nil, errs.NewUnexpected("truncated envelope header")
	}
	idLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < idLen+1 {
		return "", nil, nil, errs.NewUnexpected("truncated envelope provider id")
	}
	providerID = string(rest[:idLen])
	rest = rest[idLen:]

	nonceLen := int(rest[0])
	rest = rest[1:]
	if len(rest) < nonceLen {
		return "", nil, nil, errs.NewUnexpected("truncated envelope nonce")
	}
	nonce = rest[:nonceLen]
	ciphertext = rest[nonceLen:]
	return providerID, nonce, ciphertext, nil
}

// IsEnveloped reports whether the value starts with the envelope magic.
// Values written before encryption was enabled do not, and are read back
// as plaintext.
func IsEnveloped(data []byte) bool {
	return len(data) >= len(envelopeMagic)+2 && bytes.HasPrefix(data, envelopeMagic)
}
