/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyChannelModesSimpleToggle(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	applied, errs, _ := ApplyChannelModes(channel, alice, "+nt", nil, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 2)
	assert.True(t, channel.ModeIsSet(ChanModeNoExternal))
	assert.True(t, channel.ModeIsSet(ChanModeTopicLock))
}

func TestApplyChannelModesPeonDenied(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	bob := newTestUser("001BBBBBB", "bob", "b", "h")
	require.True(t, channel.Join(alice, &Message{}))
	require.True(t, channel.Join(bob, &Message{}))

	applied, errs, _ := ApplyChannelModes(channel, bob, "+n", nil, channel.extbans)
	assert.Empty(t, applied)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrInsuffPerms)
}

func TestApplyChannelModesRemoteBypassesAccessCheck(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	bob := newTestUser("001BBBBBB", "bob", "b", "h")
	require.True(t, channel.Join(bob, &Message{}))
	// bob already holds owner from being the sole joiner; use a
	// second, non-privileged user to prove the nil (server) setter
	// bypasses the access gate entirely.
	carol := newTestUser("001CCCCCC", "carol", "c", "h")
	require.True(t, channel.Join(carol, &Message{}))

	applied, errs, _ := ApplyChannelModes(channel, nil, "+o", []string{"carol"}, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 1)

	member, err := channel.Members.Get(carol.ID())
	require.NoError(t, err)
	assert.True(t, member.HasFlag(MemberOp))
}

func TestApplyChannelModesStatusFlagSetAndUnset(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	bob := newTestUser("001BBBBBB", "bob", "b", "h")
	require.True(t, channel.Join(alice, &Message{}))
	require.True(t, channel.Join(bob, &Message{}))

	// Only the first +o changes state: bob has no voice to remove, and
	// the second +o finds him already opped, so both are no-ops.
	applied, errs, _ := ApplyChannelModes(channel, alice, "+o-v+o", []string{"bob", "bob", "bob"}, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 1)

	member, err := channel.Members.Get(bob.ID())
	require.NoError(t, err)
	assert.True(t, member.HasFlag(MemberOp))
	assert.False(t, member.HasFlag(MemberVoice))
}

func TestApplyChannelModesKeyAndLimit(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	applied, errs, _ := ApplyChannelModes(channel, alice, "+kl", []string{"secret", "10"}, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 2)
	assert.Equal(t, "secret", channel.Key())
	assert.Equal(t, 10, channel.Limit())

	applied, errs, _ = ApplyChannelModes(channel, alice, "-kl", nil, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 2)
	assert.Equal(t, "", channel.Key())
	assert.Equal(t, 0, channel.Limit())
}

func TestApplyChannelModesBanAddAndDel(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	applied, errs, _ := ApplyChannelModes(channel, alice, "+b", []string{"*!*@evil.example"}, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 1)
	assert.Equal(t, 1, channel.BanList.Len())

	applied, errs, _ = ApplyChannelModes(channel, alice, "-b", []string{"*!*@evil.example"}, channel.extbans)
	assert.Empty(t, errs)
	require.Len(t, applied, 1)
	assert.Equal(t, 0, channel.BanList.Len())
}

func TestApplyChannelModesBareBanQueryIsNotAChange(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	applied, errs, queries := ApplyChannelModes(channel, alice, "+b", nil, channel.extbans)
	assert.Empty(t, errs)
	assert.Empty(t, applied)
	assert.Equal(t, []byte{'b'}, queries)
}

func TestApplyChannelModesUnknownMode(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	_, errs, _ := ApplyChannelModes(channel, alice, "+Z", nil, channel.extbans)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrUnknownMode)
}

func TestApplyChannelModesAlreadySetIsNoop(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	bob := newTestUser("001BBBBBB", "bob", "b", "h")
	require.True(t, channel.Join(alice, &Message{}))
	require.True(t, channel.Join(bob, &Message{}))

	_, errs, _ := ApplyChannelModes(channel, alice, "+o", []string{"bob"}, channel.extbans)
	assert.Empty(t, errs)

	// Setting +o again on an already-op member is a no-op: the mode
	// engine checks the member's current state, so nothing is applied
	// and nothing errors.
	applied, errs, _ := ApplyChannelModes(channel, alice, "+o", []string{"bob"}, channel.extbans)
	assert.Empty(t, errs)
	assert.Empty(t, applied)

	member, err := channel.Members.Get(bob.ID())
	require.NoError(t, err)
	assert.True(t, member.HasFlag(MemberOp))
}

func TestFormatModeStringCoalescesDirection(t *testing.T) {
	changes := []ModeChange{
		{Add: true, Char: 'o', Param: "bob"},
		{Add: false, Char: 'v', Param: "bob"},
		{Add: true, Char: 'o', Param: "carol"},
	}

	letters, params := FormatModeString(changes)
	assert.Equal(t, "+o-v+o", letters)
	assert.Equal(t, []string{"bob", "bob", "carol"}, params)
}

func TestChannelAccessLevelNotOnChan(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	stranger := newTestUser("001DDDDDD", "dave", "d", "h")
	assert.Equal(t, AlevelNotOnChan, channelAccessLevel(channel, stranger))
}

func TestChannelAccessLevelRemoteForNilSetter(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	assert.Equal(t, AlevelRemote, channelAccessLevel(channel, nil))
}
