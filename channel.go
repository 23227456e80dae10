/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package meshd

import (
	"bytes"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Channel represents an IRC channel: its topic, modes, membership,
// and ban/exception/invex lists.
type Channel struct {
	sync.RWMutex

	name  string
	topic string

	topicSetBy string

	modes uint64
	key   string
	limit int

	extbans *ExtbanRegistry

	// Members holds every client currently joined, keyed by client id.
	Members *MemberMap

	BanList    *BanList
	ExceptList *BanList
	InvexList  *BanList

	// Invited tracks one-shot invite exemptions granted via INVITE,
	// keyed by the invited client's id, cleared on join.
	Invited map[string]bool

	// Join-flood leaky-bucket state, ported from ircd-hybrid's
	// number_joined/last_join_time: floodCount decays continuously
	// between joins rather than refilling on a tick, and floodNoticed
	// latches once the threshold is crossed so only one oper notice
	// goes out per flood rather than one per join while it stays full.
	floodCount    float64
	floodLastJoin time.Time
	floodNoticed  bool
}

// NewChannel initializes a Channel with the given name, owned by the
// extban registry handed to it so ban/exception/invex entries can
// resolve "$x:" masks without a back-reference to the server.
func NewChannel(cname string, reg *ExtbanRegistry) *Channel {
	channel := &Channel{
		name:       cname,
		extbans:    reg,
		Members:    NewMemberMap(),
		BanList:    NewBanList(),
		ExceptList: NewBanList(),
		InvexList:  NewBanList(),
		Invited:    make(map[string]bool),
	}

	return channel
}

// Name returns the name of the channel in a currency safe manner.
func (channel *Channel) Name() string {
	channel.RLock()
	defer channel.RUnlock()

	return channel.name
}

// SetName sets the name of the channel in a currency safe manner.
func (channel *Channel) SetName(new string) {
	channel.Lock()
	defer channel.Unlock()

	channel.name = new
}

// Topic returns the topic of the channel in a currency safe manner.
func (channel *Channel) Topic() string {
	channel.RLock()
	defer channel.RUnlock()

	return channel.topic
}

// SetTopic sets the topic of the channel, gated by the topic-lock
// (+t) mode: if set, only a chanop may change the topic. Pass a nil
// setter for server/burst-originated topic changes, which always
// bypass the lock.
func (channel *Channel) SetTopic(new string, setter *User) error {
	channel.Lock()
	defer channel.Unlock()

	if setter != nil && channel.modes&ChanModeTopicLock == ChanModeTopicLock {
		member, err := channel.Members.Get(setter.ID())
		if err != nil || member.AccessLevel() < AlevelChanOp {
			return ErrInsuffPerms
		}
	}

	channel.topic = new
	if setter != nil {
		channel.topicSetBy = setter.Hostmask()
	}
	return nil
}

// TopicSetBy returns the hostmask of whoever last set the topic.
func (channel *Channel) TopicSetBy() string {
	channel.RLock()
	defer channel.RUnlock()
	return channel.topicSetBy
}

// ModeIsSet checks if a given channel mode flag is currently set.
func (channel *Channel) ModeIsSet(mode uint64) bool {
	channel.RLock()
	defer channel.RUnlock()
	return channel.modes&mode == mode
}

// Modes returns the channel's simple-mode bitmask.
func (channel *Channel) Modes() uint64 {
	channel.RLock()
	defer channel.RUnlock()
	return channel.modes
}

func (channel *Channel) addMode(mode uint64) {
	channel.Lock()
	defer channel.Unlock()
	channel.modes |= mode
}

func (channel *Channel) delMode(mode uint64) {
	channel.Lock()
	defer channel.Unlock()
	channel.modes &^= mode
}

func (channel *Channel) setKey(key string) {
	channel.Lock()
	defer channel.Unlock()
	channel.key = key
}

// Key returns the channel's join key (+k), or an empty string if unset.
func (channel *Channel) Key() string {
	channel.RLock()
	defer channel.RUnlock()
	return channel.key
}

func (channel *Channel) setLimit(raw string) {
	channel.Lock()
	defer channel.Unlock()
	if raw == "" {
		channel.limit = 0
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return
	}
	channel.limit = n
}

// Limit returns the channel's join limit (+l), or 0 if unset.
func (channel *Channel) Limit() int {
	channel.RLock()
	defer channel.RUnlock()
	return channel.limit
}

func (channel *Channel) memberByNick(nick string) (*Member, error) {
	var found *Member
	channel.Members.ForEach(func(m *Member) {
		if found == nil && strings.EqualFold(m.User().Nick(), nick) {
			found = m
		}
	})
	if found == nil {
		return nil, ErrUserNotInChan
	}
	return found, nil
}

func (channel *Channel) memberByID(id string) (*Member, error) {
	return channel.Members.Get(id)
}

// banCardinality returns the combined count across the ban, exception,
// and invex lists, gated against MaxListItems (MaxListItemsLarge when
// the EXTLIMIT mode is set), matching the source's single shared cap
// across all three lists rather than one cap apiece.
func (channel *Channel) banCardinality() (total, max int) {
	total = channel.BanList.Len() + channel.ExceptList.Len() + channel.InvexList.Len()
	if channel.ModeIsSet(ChanModeExtLimit) {
		return total, MaxListItemsLarge
	}
	return total, MaxListItems
}

func (channel *Channel) addBan(class byte, mask, setter string, reg *ExtbanRegistry) error {
	ban := NewBan(reg, mask, setter)
	if !ban.ValidOn(class) {
		return ErrExtbanNotOnList
	}

	if total, max := channel.banCardinality(); total >= max {
		return ErrBanListFull
	}

	switch class {
	case 'b':
		return channel.BanList.Add(ban)
	case 'e':
		return channel.ExceptList.Add(ban)
	case 'I':
		return channel.InvexList.Add(ban)
	default:
		return ErrInvalidExtban
	}
}

func (channel *Channel) delBan(class byte, mask string) error {
	switch class {
	case 'b':
		return channel.BanList.Del(mask)
	case 'e':
		return channel.ExceptList.Del(mask)
	case 'I':
		return channel.InvexList.Del(mask)
	default:
		return ErrInvalidExtban
	}
}

// IsBanned reports whether user is banned from the channel, i.e.
// matches a matching-class entry on BanList and none on ExceptList.
// Acting-class extbans (the mute ban, the join-gate invex) never
// participate here; they apply their effect elsewhere instead.
func (channel *Channel) IsBanned(user *User) bool {
	if !channel.BanList.MatchesBanCheck(user, channel) {
		return false
	}
	return !channel.ExceptList.MatchesBanCheck(user, channel)
}

// IsMuted reports whether user matches an acting-class mute ('$m:')
// entry on the channel's ban list. Unlike IsBanned this doesn't deny
// membership: it's checked at message-send time instead.
func (channel *Channel) IsMuted(user *User) bool {
	for _, ban := range channel.BanList.Entries() {
		if ban.ext != nil && ban.ext.Char == 'm' && ban.ext.Matches(user, channel, ban.extArg) {
			return true
		}
	}
	return false
}

// CanBypassInvite reports whether user may join an invite-only
// channel without a standing INVITE, either via a one-shot INVITE
// grant or a matching invex ($j: join-gate, or host glob) entry.
func (channel *Channel) CanBypassInvite(user *User) bool {
	channel.RLock()
	invited := channel.Invited[user.ID()]
	channel.RUnlock()

	if invited {
		return true
	}
	return channel.InvexList.Matches(user, channel)
}

// Invite grants user a one-shot exemption from +i, cleared on join.
func (channel *Channel) Invite(user *User) {
	channel.Lock()
	defer channel.Unlock()
	channel.Invited[user.ID()] = true
}

// RegisterJoin folds one join into the channel's join-flood leaky
// bucket and reports whether this join is the one that first crosses
// the configured threshold. It never refuses the join: the bucket is
// purely a notification signal for opers, matching ircd-hybrid's
// add_user_to_channel, which counts joins but never gates on them.
func (channel *Channel) RegisterJoin(count int, window time.Duration) (crossed bool) {
	channel.Lock()
	defer channel.Unlock()

	now := time.Now()
	var elapsed time.Duration
	if !channel.floodLastJoin.IsZero() {
		elapsed = now.Sub(channel.floodLastJoin)
	}
	channel.floodLastJoin = now

	channel.floodCount++
	channel.floodCount -= elapsed.Seconds() * (float64(count) / window.Seconds())

	if channel.floodCount <= 0 {
		channel.floodCount = 0
		channel.floodNoticed = false
		return false
	}

	if channel.floodCount >= float64(count) {
		channel.floodCount = float64(count)
		if !channel.floodNoticed {
			channel.floodNoticed = true
			return true
		}
	}

	return false
}

// Send takes a message, then iterates the members of the channel,
// and sends the message to each one's underlying connection. Remote
// members (no local conn) are skipped, and nothing is relayed to peer
// links from here.
func (channel *Channel) Send(msg *Message, excludeID string) {
	buf := msg.RenderBuffer()

	channel.Members.ForEach(func(m *Member) {
		user := m.User()
		if user.ID() == excludeID {
			return
		}
		if user.conn != nil {
			user.conn.Write(buf)
		}
	})
}

// Join adds the user to the channel and alerts all channel
// members of the event. Authorization (ban/key/limit/invite) is the
// caller's responsibility; Join only performs the mechanical add.
func (channel *Channel) Join(user *User, msg *Message) bool {
	member := NewMember(user, channel)
	if channel.Members.Length() == 0 {
		member.AddFlag(MemberOwner)
	}

	if err := channel.Members.Add(user.ID(), member); err != nil {
		return false
	}

	channel.Lock()
	delete(channel.Invited, user.ID())
	channel.Unlock()

	channel.Send(msg, "")
	return true
}

// Part removes the user from the channel and alerts all channel
// members of the event.
func (channel *Channel) Part(user *User, msg *Message) {
	channel.Send(msg, "")
	channel.Members.Del(user.ID())
}

// GetNicks returns an array of the current nicknames of the users
// in the channel, each prefixed by its highest status sigil.
func (channel *Channel) GetNicks() []string {
	var buffer bytes.Buffer
	nicks := make([]string, 0, channel.Members.Length())

	channel.Members.ForEach(func(m *Member) {
		buffer.WriteString(m.Prefix())
		buffer.WriteString(m.User().Nick())
		nicks = append(nicks, buffer.String())
		buffer.Reset()
	})

	return nicks
}
