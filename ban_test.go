/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBanListAddRejectsDuplicate(t *testing.T) {
	list := NewBanList()
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })

	ban := NewBan(reg, "*!*@evil.example", "op!o@h")
	require.NoError(t, list.Add(ban))

	dup := NewBan(reg, "*!*@evil.example", "op2!o@h")
	assert.ErrorIs(t, list.Add(dup), ErrBanAlreadySet)
	assert.Equal(t, 1, list.Len())
}

func TestBanListDelUnknownMask(t *testing.T) {
	list := NewBanList()
	assert.ErrorIs(t, list.Del("*!*@nowhere"), ErrNoSuchBan)
}

func TestBanListAddHasNoPerListCap(t *testing.T) {
	list := NewBanList()
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })

	for i := 0; i < MaxListItems; i++ {
		mask := fmt.Sprintf("user%d!*@host%d.example", i, i)
		require.NoError(t, list.Add(NewBan(reg, mask, "op!o@h")))
	}
	assert.Equal(t, MaxListItems, list.Len())

	// The combined ban/exception/invex cap lives in channel.addBan
	// (banCardinality); BanList.Add itself only rejects duplicates.
	overflow := NewBan(reg, "overflow!*@host.example", "op!o@h")
	assert.NoError(t, list.Add(overflow))
	assert.Equal(t, MaxListItems+1, list.Len())
}

func TestBanListMatches(t *testing.T) {
	list := NewBanList()
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	require.NoError(t, list.Add(NewBan(reg, "*!*@evil.example", "op!o@h")))

	mallory := newTestUser("001EEEEEE", "mallory", "m", "evil.example")
	assert.True(t, list.Matches(mallory, nil))

	alice := newTestUser("001FFFFFF", "alice", "a", "good.example")
	assert.False(t, list.Matches(alice, nil))
}

func TestBanListEntriesIsSnapshot(t *testing.T) {
	list := NewBanList()
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	require.NoError(t, list.Add(NewBan(reg, "*!*@evil.example", "op!o@h")))

	snap := list.Entries()
	require.Len(t, snap, 1)

	require.NoError(t, list.Add(NewBan(reg, "*!*@other.example", "op!o@h")))
	assert.Len(t, snap, 1, "earlier snapshot must not observe later mutation")
	assert.Equal(t, 2, list.Len())
}
