/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import "strings"

// Channel mode bitmask. Mirrors usermode.go's bitmask style,
// generalized to channel-scoped simple (flag, no parameter) modes.
const (
	ChanModeNoExternal uint64 = 1 << iota
	ChanModeTopicLock
	ChanModeSecret
	ChanModePrivate
	ChanModeModerated
	ChanModeInviteOnly
	ChanModeRegisteredOnly
	ChanModeSSLOnly
	ChanModeOperOnly
	// ChanModeExtLimit ('L') raises a channel's ban/exception/invex
	// cardinality cap from MaxListItems to MaxListItemsLarge.
	ChanModeExtLimit
	// ChanModeHideBanMasks ('u') directs mask-type MODE changes to
	// chanops/halfops only when serialized for clients.
	ChanModeHideBanMasks
)

// chanSimpleModes maps the mode letter to its bitmask for the
// no-parameter flag class.
var chanSimpleModes = map[byte]uint64{
	'n': ChanModeNoExternal,
	't': ChanModeTopicLock,
	's': ChanModeSecret,
	'p': ChanModePrivate,
	'm': ChanModeModerated,
	'i': ChanModeInviteOnly,
	'R': ChanModeRegisteredOnly,
	'S': ChanModeSSLOnly,
	'O': ChanModeOperOnly,
	'L': ChanModeExtLimit,
	'u': ChanModeHideBanMasks,
}

// chanStatusModes maps the mode letter to the Member status flag it
// grants; these always take exactly one parameter, a nickname.
var chanStatusModes = map[byte]uint32{
	'q': MemberOwner,
	'o': MemberOp,
	'h': MemberHalfOp,
	'v': MemberVoice,
}

// chanListModes are the mask-list modes: ban, exception, invite-exempt.
var chanListModes = map[byte]bool{
	'b': true,
	'e': true,
	'I': true,
}

// ModeChange describes one resolved, applied mode flag for echoing
// back to the client and relaying to peers (MODE/TMODE).
type ModeChange struct {
	Add   bool
	Char  byte
	Param string
}

// ApplyChannelModes parses a compound mode string such as "+ov-k" with
// its trailing parameters against channel, gated by setter's access
// level, and applies every change it is permitted to make. It returns
// the changes actually applied (for echo/relay), any errors hit along
// the way, and the set of list-mode letters ('b'/'e'/'I') that were
// queried bare rather than changed, e.g. a lone "+b" with no mask
// following — the caller answers those with a list reply instead of a
// wire MODE echo. A caller still applies the changes that succeeded
// even when later ones in the same string fail.
//
// The returned changes are not chunked; HandleMode splits them into
// batches of at most Limits.MaxModeChange when relaying them.
func ApplyChannelModes(channel *Channel, setter *User, modestr string, params []string, reg *ExtbanRegistry) ([]ModeChange, []error, []byte) {
	var applied []ModeChange
	var errs []error
	var queries []byte

	add := true
	pi := 0
	var simpleModesMask uint64
	keyIdx, limitIdx := -1, -1

	nextParam := func() (string, bool) {
		if pi >= len(params) {
			return "", false
		}
		p := params[pi]
		pi++
		return p, true
	}

	level := channelAccessLevel(channel, setter)

	for i := 0; i < len(modestr); i++ {
		c := modestr[i]
		switch c {
		case '+':
			add = true
			continue
		case '-':
			add = false
			continue
		}

		switch {
		case c == 'k':
			if level < AlevelChanOp {
				errs = append(errs, ErrInsuffPerms)
				continue
			}
			param, _ := nextParam()
			if add {
				channel.setKey(param)
			} else {
				channel.setKey("")
			}
			if keyIdx >= 0 {
				// A later +k/-k in the same invocation wins; nullify
				// the earlier entry rather than emitting both.
				applied[keyIdx] = ModeChange{Add: add, Char: c, Param: param}
			} else {
				keyIdx = len(applied)
				applied = append(applied, ModeChange{Add: add, Char: c, Param: param})
			}

		case c == 'l':
			if level < AlevelChanOp {
				errs = append(errs, ErrInsuffPerms)
				continue
			}
			var param string
			if add {
				param, _ = nextParam()
				channel.setLimit(param)
			} else {
				channel.setLimit("")
			}
			if limitIdx >= 0 {
				applied[limitIdx] = ModeChange{Add: add, Char: c, Param: param}
			} else {
				limitIdx = len(applied)
				applied = append(applied, ModeChange{Add: add, Char: c, Param: param})
			}

		case chanListModes[c]:
			param, ok := nextParam()
			if !ok {
				// Bare "+b"/"+e"/"+I" with no param is a list query,
				// not a change; caller handles listing separately.
				if !containsByte(queries, c) {
					queries = append(queries, c)
				}
				continue
			}
			if level < AlevelChanOp {
				errs = append(errs, ErrInsuffPerms)
				continue
			}
			var err error
			if add {
				err = channel.addBan(c, param, maskSetterID(setter), reg)
			} else {
				err = channel.delBan(c, param)
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			applied = append(applied, ModeChange{Add: add, Char: c, Param: param})

		case chanStatusModes[c] != 0:
			if level < AlevelChanOp {
				errs = append(errs, ErrInsuffPerms)
				continue
			}
			nick, ok := nextParam()
			if !ok {
				errs = append(errs, ErrMissingParams)
				continue
			}
			member, err := channel.memberByNick(nick)
			if err != nil {
				errs = append(errs, ErrUserNotInChan)
				continue
			}
			flag := chanStatusModes[c]
			if add == member.HasFlag(flag) {
				// Already in the requested state: a no-op that
				// produces no wire output, not merely a redundant set.
				continue
			}
			if add {
				member.AddFlag(flag)
			} else {
				member.DelFlag(flag)
			}
			applied = append(applied, ModeChange{Add: add, Char: c, Param: nick})

		case chanSimpleModes[c] != 0:
			if level < AlevelChanOp {
				errs = append(errs, ErrInsuffPerms)
				continue
			}
			flag := chanSimpleModes[c]
			if simpleModesMask&flag != 0 {
				// Already coalesced once this invocation; a repeat
				// of the same letter produces no second wire entry.
				continue
			}
			simpleModesMask |= flag
			if add {
				channel.addMode(flag)
			} else {
				channel.delMode(flag)
			}
			applied = append(applied, ModeChange{Add: add, Char: c})

		default:
			errs = append(errs, unknownModeError{char: c})
		}
	}

	return applied, errs, queries
}

// unknownModeError reports an unrecognized mode letter, carrying the
// offending character so the caller's ERR_UNKNOWNMODE reply can name
// it. It wraps ErrUnknownMode so errors.Is still matches it.
type unknownModeError struct {
	char byte
}

func (e unknownModeError) Error() string { return ErrUnknownMode.Error() }
func (e unknownModeError) Is(target error) bool { return target == ErrUnknownMode }

// containsByte reports whether b appears in list.
func containsByte(list []byte, b byte) bool {
	for _, c := range list {
		if c == b {
			return true
		}
	}
	return false
}

// maskSetterID returns the identity string recorded as a ban entry's
// setter: the local setter's hostmask, or "*" when setter is nil (a burst/services-originated change).
func maskSetterID(setter *User) string {
	if setter == nil {
		return "*"
	}
	return setter.Hostmask()
}

// channelAccessLevel resolves setter's AccessLevel on channel,
// returning AlevelNotOnChan if they hold no membership there and
// AlevelRemote if the server itself (nil setter) is applying the
// change (burst/services).
func channelAccessLevel(channel *Channel, setter *User) AccessLevel {
	if setter == nil {
		return AlevelRemote
	}
	member, err := channel.memberByID(setter.ID())
	if err != nil {
		return AlevelNotOnChan
	}
	return member.AccessLevel()
}

// FormatModeString renders a slice of ModeChange back into compound
// "+ov-k nick nick key" wire form, coalescing consecutive adds/removes
// under a single sigil the way RFC2812 servers do.
func FormatModeString(changes []ModeChange) (string, []string) {
	var letters strings.Builder
	var params []string
	var lastAdd *bool

	for _, ch := range changes {
		if lastAdd == nil || *lastAdd != ch.Add {
			if ch.Add {
				letters.WriteByte('+')
			} else {
				letters.WriteByte('-')
			}
			add := ch.Add
			lastAdd = &add
		}
		letters.WriteByte(ch.Char)
		if ch.Param != "" {
			params = append(params, ch.Param)
		}
	}

	return letters.String(), params
}
