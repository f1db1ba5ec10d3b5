// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package model

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustUUID(s string) uuid.UUID {
	return uuid.MustParse(s)
}

func TestParseMemoryEpochFilter(t *testing.T) {
	testCases := []struct {
		name          string
		raw           string
		expectedMode  string
		expectedEpoch *int64
		expectError   bool
	}{
		{
			name:         "empty defaults to latest",
			raw:          "",
			expectedMode: EpochModeLatest,
		},
		{
			name:         "explicit latest",
			raw:          "latest",
			expectedMode: EpochModeLatest,
		},
		{
			name:         "latest is case insensitive",
			raw:          "Latest",
			expectedMode: EpochModeLatest,
		},
		{
			name:         "all epochs",
			raw:          "all",
			expectedMode: EpochModeAll,
		},
		{
			name:          "specific epoch",
			raw:           "7",
			expectedMode:  EpochModeSpecific,
			expectedEpoch: int64Ptr(7),
		},
		{
			name:        "garbage rejected",
			raw:         "newest",
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			filter, err := ParseMemoryEpochFilter(tc.raw)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedMode, filter.Mode)
			if tc.expectedEpoch != nil {
				require.NotNil(t, filter.Epoch)
				assert.Equal(t, *tc.expectedEpoch, *filter.Epoch)
			} else {
				assert.Nil(t, filter.Epoch)
			}
		})
	}
}

func TestParseContentItems(t *testing.T) {
	items, err := ParseContentItems(json.RawMessage(`[{"kind":"note"},"second"]`))
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, err = ParseContentItems(nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = ParseContentItems(json.RawMessage(`{"not":"an array"}`))
	require.Error(t, err)
}

func TestAccessLevelLattice(t *testing.T) {
	assert.True(t, AccessOwner.AtLeast(AccessReader))
	assert.True(t, AccessManager.AtLeast(AccessWriter))
	assert.True(t, AccessWriter.AtLeast(AccessWriter))
	assert.False(t, AccessReader.AtLeast(AccessWriter))
	assert.False(t, AccessLevel("admin").AtLeast(AccessReader))
	assert.False(t, AccessReader.AtLeast(AccessLevel("")))
	assert.True(t, AccessOwner.Valid())
	assert.False(t, AccessLevel("superuser").Valid())
}

func TestMembershipAuditString(t *testing.T) {
	audit := &MembershipAudit{
		Action:       AuditActionTransfer,
		Actor:        "alice",
		Conversation: mustUUID("7f000001-0000-0000-0000-000000000001"),
		From:         "alice",
		To:           "bob",
	}
	assert.Equal(t,
		"action=transfer actor=alice conversation=7f000001-0000-0000-0000-000000000001 from=alice to=bob",
		audit.String(),
	)
}

func int64Ptr(i int64) *int64 {
	return &i
}
