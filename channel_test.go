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

func newTestRegistry() *ExtbanRegistry {
	return NewExtbanRegistry(func() string { return "irc.example.org" })
}

func TestChannelJoinFirstMemberGetsOwner(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")

	ok := channel.Join(alice, &Message{})
	require.True(t, ok)

	member, err := channel.Members.Get(alice.ID())
	require.NoError(t, err)
	assert.True(t, member.HasFlag(MemberOwner))
	assert.Equal(t, "~", member.Prefix())
}

func TestChannelJoinSecondMemberGetsNoStatus(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	bob := newTestUser("001BBBBBB", "bob", "b", "h")

	require.True(t, channel.Join(alice, &Message{}))
	require.True(t, channel.Join(bob, &Message{}))

	member, err := channel.Members.Get(bob.ID())
	require.NoError(t, err)
	assert.Equal(t, "", member.Prefix())
}

func TestChannelJoinRejectsDuplicate(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")

	require.True(t, channel.Join(alice, &Message{}))
	assert.False(t, channel.Join(alice, &Message{}))
}

func TestChannelPartRemovesMembership(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")

	require.True(t, channel.Join(alice, &Message{}))
	channel.Part(alice, &Message{})

	assert.False(t, channel.Members.Exists(alice.ID()))
	assert.Equal(t, 0, channel.Members.Length())
}

func TestChannelJoinClearsPendingInvite(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")

	channel.Invite(alice)
	assert.True(t, channel.CanBypassInvite(alice))

	require.True(t, channel.Join(alice, &Message{}))
	assert.False(t, channel.CanBypassInvite(alice))
}

func TestChannelTopicLockRequiresChanOp(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	channel.addMode(ChanModeTopicLock)

	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	bob := newTestUser("001BBBBBB", "bob", "b", "h")
	require.True(t, channel.Join(bob, &Message{}))

	err := channel.SetTopic("new topic", bob)
	assert.ErrorIs(t, err, ErrInsuffPerms)
	assert.Empty(t, channel.Topic())

	require.NoError(t, channel.SetTopic("owner's topic", alice))
	assert.Equal(t, "owner's topic", channel.Topic())
}

func TestChannelSetTopicServerOriginBypassesLock(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	channel.addMode(ChanModeTopicLock)

	require.NoError(t, channel.SetTopic("burst topic", nil))
	assert.Equal(t, "burst topic", channel.Topic())
}

func TestChannelIsBannedExceptedByMatchingException(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	require.NoError(t, channel.addBan('b', "*!*@evil.example", "op!o@h", channel.extbans))
	require.NoError(t, channel.addBan('e', "baduser!*@evil.example", "op!o@h", channel.extbans))

	mallory := newTestUser("001AAAAAA", "mallory", "m", "evil.example")
	assert.True(t, channel.IsBanned(mallory))

	baduser := newTestUser("001BBBBBB", "baduser", "bad", "evil.example")
	assert.False(t, channel.IsBanned(baduser))
}

func TestChannelAddBanRejectsDuplicate(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	require.NoError(t, channel.addBan('b', "*!*@evil.example", "op!o@h", channel.extbans))
	assert.ErrorIs(t, channel.addBan('b', "*!*@evil.example", "op!o@h", channel.extbans), ErrBanAlreadySet)
}

func TestChannelAddBanRejectsExtbanOutOfScope(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	// 'm' (mute) is an acting extban scoped only to the ban list.
	err := channel.addBan('I', "$m:*!*@evil.example", "op!o@h", channel.extbans)
	assert.ErrorIs(t, err, ErrExtbanNotOnList)
}

func TestChannelBanCardinalityRaisedByExtLimit(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	for i := 0; i < MaxListItems; i++ {
		mask := fmt.Sprintf("user%d!*@host%d.example", i, i)
		require.NoError(t, channel.addBan('b', mask, "op!o@h", channel.extbans))
	}

	overflow := "overflow!*@host.example"
	assert.ErrorIs(t, channel.addBan('b', overflow, "op!o@h", channel.extbans), ErrBanListFull)

	channel.addMode(ChanModeExtLimit)
	assert.NoError(t, channel.addBan('b', overflow, "op!o@h", channel.extbans))
}

func TestChannelGetNicksIncludesPrefix(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	alice := newTestUser("001AAAAAA", "alice", "a", "h")
	require.True(t, channel.Join(alice, &Message{}))

	nicks := channel.GetNicks()
	require.Len(t, nicks, 1)
	assert.Equal(t, "~alice", nicks[0])
}

func TestChannelRegisterJoinNeverRefusesAndNoticesOnce(t *testing.T) {
	channel := NewChannel("#test", newTestRegistry())
	crossings := 0
	for i := 0; i < DefaultJoinFloodCount+5; i++ {
		if channel.RegisterJoin(DefaultJoinFloodCount, DefaultJoinFloodTime) {
			crossings++
		}
	}
	// The bucket never refuses a join; it only latches the oper notice
	// once when the threshold is first crossed, staying silent on every
	// subsequent join until the count decays back to zero.
	assert.Equal(t, 1, crossings)
	assert.True(t, channel.floodNoticed)
}
