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

// Ban is a single entry on a channel's ban, exception, or invex list.
// Mask is the raw text as set (either a hostmask glob or an "$x:arg"
// extban); ext is populated if Mask parsed as a known extban.
type Ban struct {
	Mask   string
	Setter string
	Set    time.Time

	ext    *Extban
	extArg string
}

// NewBan parses mask against the server's extban registry and
// returns a Ban ready to be appended to a BanList.
func NewBan(reg *ExtbanRegistry, mask, setter string) *Ban {
	ban := &Ban{
		Mask:   mask,
		Setter: setter,
		Set:    time.Now(),
	}

	if char, arg, ok := ParseExtban(mask); ok && reg != nil {
		if ext, found := reg.Lookup(char); found {
			ban.ext = ext
			ban.extArg = arg
		}
	}

	return ban
}

// Matches reports whether user, joining or already on channel,
// matches this ban entry.
func (b *Ban) Matches(user *User, channel *Channel) bool {
	if b.ext != nil {
		return b.ext.Matches(user, channel, b.extArg)
	}
	return matchHostmask(user, b.Mask)
}

// MatchesBanCheck reports whether this entry participates in a plain
// is_banned check: a hostmask glob always does, but an extban only
// does when its Class is ExtbanMatching. An acting-class extban (the
// mute ban, the join-gate invex) never gates membership directly —
// it applies its effect elsewhere (send-time, join-time) instead.
func (b *Ban) MatchesBanCheck(user *User, channel *Channel) bool {
	if b.ext != nil {
		if b.ext.Class != ExtbanMatching {
			return false
		}
		return b.ext.Matches(user, channel, b.extArg)
	}
	return matchHostmask(user, b.Mask)
}

// ValidOn reports whether this entry is allowed to appear on the
// given list class ('b', 'e', or 'I'). A plain hostmask is valid
// everywhere; an extban is restricted to its declared Scope.
func (b *Ban) ValidOn(class byte) bool {
	if b.ext == nil {
		return true
	}

	var want ExtbanScope
	switch class {
	case 'b':
		want = ExtbanBan
	case 'e':
		want = ExtbanException
	case 'I':
		want = ExtbanInvex
	default:
		return false
	}

	return b.ext.Scope&want == want
}

// BanList is a concurrency-safe ordered list of Ban entries, used for
// a channel's ban (+b), exception (+e), and invex (+I) lists.
type BanList struct {
	sync.RWMutex
	entries []*Ban
}

// NewBanList returns an empty BanList.
func NewBanList() *BanList {
	return &BanList{entries: make([]*Ban, 0, 4)}
}

// Add appends a ban entry, rejecting a duplicate of the same mask.
func (l *BanList) Add(ban *Ban) error {
	l.Lock()
	defer l.Unlock()

	for _, existing := range l.entries {
		if existing.Mask == ban.Mask {
			return ErrBanAlreadySet
		}
	}

	l.entries = append(l.entries, ban)
	return nil
}

// Del removes the ban entry with the given mask.
func (l *BanList) Del(mask string) error {
	l.Lock()
	defer l.Unlock()

	for i, existing := range l.entries {
		if existing.Mask == mask {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return ErrNoSuchBan
}

// Matches reports whether any entry on the list matches the user.
func (l *BanList) Matches(user *User, channel *Channel) bool {
	l.RLock()
	defer l.RUnlock()

	for _, ban := range l.entries {
		if ban.Matches(user, channel) {
			return true
		}
	}
	return false
}

// MatchesBanCheck reports whether any matching-class entry on the
// list matches the user, skipping acting-class extbans such as the
// mute ban, which never participate in a plain is_banned check.
func (l *BanList) MatchesBanCheck(user *User, channel *Channel) bool {
	l.RLock()
	defer l.RUnlock()

	for _, ban := range l.entries {
		if ban.MatchesBanCheck(user, channel) {
			return true
		}
	}
	return false
}

// Entries returns a snapshot copy of the list's ban entries.
func (l *BanList) Entries() []*Ban {
	l.RLock()
	defer l.RUnlock()

	out := make([]*Ban, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries on the list.
func (l *BanList) Len() int {
	l.RLock()
	defer l.RUnlock()
	return len(l.entries)
}
