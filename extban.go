/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"strings"
)

// ExtbanClass distinguishes an extban that only changes what a mask
// matches against (matching) from one that denies an action outright
// once matched (acting).
type ExtbanClass uint8

const (
	ExtbanMatching ExtbanClass = iota
	ExtbanActing
)

// ExtbanScope is a bitset of the {ban,exception,invex} lists an
// extban is permitted to appear on.
type ExtbanScope uint8

const (
	ExtbanBan ExtbanScope = 1 << iota
	ExtbanException
	ExtbanInvex
)

// Extban describes one registered "$x:" extended ban type.
type Extban struct {
	Char    byte
	Class   ExtbanClass
	Scope   ExtbanScope
	Matches func(user *User, channel *Channel, arg string) bool
}

// ExtbanRegistry holds every extban type known to the server, keyed
// by its character. Built like the rest of the lookup tables here:
// populated once at startup, read-only after, so no lock is needed.
type ExtbanRegistry struct {
	byChar map[byte]*Extban
}

// NewExtbanRegistry returns a registry pre-populated with the
// built-in extban types: server-name match, mute, and join-gate.
// serverName is consulted lazily so the registry can be built before
// the server's hostname is configured.
func NewExtbanRegistry(serverName func() string) *ExtbanRegistry {
	reg := &ExtbanRegistry{byChar: make(map[byte]*Extban)}
	reg.register(&Extban{
		Char:  's',
		Class: ExtbanMatching,
		Scope: ExtbanBan | ExtbanException | ExtbanInvex,
		Matches: func(_ *User, _ *Channel, arg string) bool {
			return globMatch(strings.ToLower(arg), strings.ToLower(serverName()))
		},
	})
	reg.register(&Extban{
		Char:  'm',
		Class: ExtbanActing,
		Scope: ExtbanBan,
		Matches: func(user *User, channel *Channel, arg string) bool {
			return matchHostmask(user, arg)
		},
	})
	reg.register(&Extban{
		Char:  'j',
		Class: ExtbanActing,
		Scope: ExtbanInvex,
		Matches: func(user *User, _ *Channel, arg string) bool {
			member, ok := user.Channels().Get(strings.ToLower(arg))
			return ok == nil && member != nil
		},
	})
	return reg
}

func (reg *ExtbanRegistry) register(ext *Extban) {
	reg.byChar[ext.Char] = ext
}

// Lookup returns the extban registered under the given character.
func (reg *ExtbanRegistry) Lookup(char byte) (*Extban, bool) {
	ext, ok := reg.byChar[char]
	return ext, ok
}

// ParseExtban splits a mask of the form "$x:arg" into its character
// and argument. ok is false if mask isn't an extban at all, in which
// case the caller should treat it as a plain hostmask.
func ParseExtban(mask string) (char byte, arg string, ok bool) {
	if len(mask) < 2 || mask[0] != '$' {
		return 0, "", false
	}
	rest := mask[1:]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return rest[0], "", true
	}
	return rest[0], rest[idx+1:], true
}
