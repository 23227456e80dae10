/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"sync"
	"time"
)

// Member status bitmask, ordered by the prefix sigil precedence used
// in Channel.GetNicks and NAMES replies (~@%+).
const (
	MemberOwner uint32 = 1 << iota
	MemberOp
	MemberHalfOp
	MemberVoice
)

// Member is a single client's state within one channel: its status
// flags and join time. Generalizes the older bare per-status UserMaps
// (Ops/HalfOps/Voiced) into one record per membership so a client's
// access level is a single lookup instead of four.
type Member struct {
	sync.RWMutex

	user    *User
	channel *Channel
	flags   uint32
	joined  time.Time
}

// NewMember returns a new Member record for user joining channel.
func NewMember(user *User, channel *Channel) *Member {
	return &Member{
		user:    user,
		channel: channel,
		joined:  time.Now(),
	}
}

// User returns the client this membership record belongs to.
func (m *Member) User() *User {
	m.RLock()
	defer m.RUnlock()
	return m.user
}

// Flags returns the member's status bitmask in a concurrency-safe manner.
func (m *Member) Flags() uint32 {
	m.RLock()
	defer m.RUnlock()
	return m.flags
}

// HasFlag reports whether the given status flag is set on the member.
func (m *Member) HasFlag(flag uint32) bool {
	m.RLock()
	defer m.RUnlock()
	return m.flags&flag == flag
}

// AddFlag sets the given status flag on the member.
func (m *Member) AddFlag(flag uint32) {
	m.Lock()
	defer m.Unlock()
	m.flags |= flag
}

// DelFlag clears the given status flag on the member.
func (m *Member) DelFlag(flag uint32) {
	m.Lock()
	defer m.Unlock()
	m.flags &^= flag
}

// AccessLevel returns the channel-scoped access level implied by the
// member's highest status flag, used by the mode engine's gate
//.
func (m *Member) AccessLevel() AccessLevel {
	m.RLock()
	defer m.RUnlock()

	switch {
	case m.flags&(MemberOwner|MemberOp) != 0:
		return AlevelChanOp
	case m.flags&MemberHalfOp != 0:
		return AlevelHalfOp
	default:
		return AlevelPeon
	}
}

// Prefix returns the highest-precedence status sigil for the member,
// or an empty string if the member holds no status.
func (m *Member) Prefix() string {
	m.RLock()
	defer m.RUnlock()

	switch {
	case m.flags&MemberOwner != 0:
		return "~"
	case m.flags&MemberOp != 0:
		return "@"
	case m.flags&MemberHalfOp != 0:
		return "%"
	case m.flags&MemberVoice != 0:
		return "+"
	default:
		return ""
	}
}
