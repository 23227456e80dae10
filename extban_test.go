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

func TestParseExtban(t *testing.T) {
	tests := []struct {
		name     string
		mask     string
		wantChar byte
		wantArg  string
		wantOK   bool
	}{
		{"not an extban", "*!*@evil.example", 0, "", false},
		{"too short", "$", 0, "", false},
		{"server extban with arg", "$s:irc.example.org", 's', "irc.example.org", true},
		{"extban with no arg", "$j", 'j', "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			char, arg, ok := ParseExtban(tt.mask)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantChar, char)
				assert.Equal(t, tt.wantArg, arg)
			}
		})
	}
}

func TestExtbanServerMatchesLocalServerName(t *testing.T) {
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	ext, ok := reg.Lookup('s')
	require.True(t, ok)
	assert.Equal(t, ExtbanMatching, ext.Class)

	user := newTestUser("001AAAAAA", "alice", "a", "host.example")
	assert.True(t, ext.Matches(user, nil, "irc.*"))
	assert.False(t, ext.Matches(user, nil, "other.*"))
}

func TestExtbanMuteIsActing(t *testing.T) {
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	ext, ok := reg.Lookup('m')
	require.True(t, ok)
	assert.Equal(t, ExtbanActing, ext.Class)
	assert.Equal(t, ExtbanBan, ext.Scope)

	user := newTestUser("001BBBBBB", "bob", "b", "evil.example")
	assert.True(t, ext.Matches(user, nil, "*!*@evil.example"))
}

func TestExtbanJoinGateScope(t *testing.T) {
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	ext, ok := reg.Lookup('j')
	require.True(t, ok)
	assert.Equal(t, ExtbanActing, ext.Class)
	assert.Equal(t, ExtbanInvex, ext.Scope)
}

func TestBanMatchesExtban(t *testing.T) {
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	ban := NewBan(reg, "$s:irc.*", "op!o@h")
	user := newTestUser("001CCCCCC", "carol", "c", "host.example")
	assert.True(t, ban.Matches(user, nil))
}

func TestBanMatchesPlainHostmask(t *testing.T) {
	reg := NewExtbanRegistry(func() string { return "irc.example.org" })
	ban := NewBan(reg, "*!*@evil.example", "op!o@h")
	user := newTestUser("001DDDDDD", "mallory", "m", "evil.example")
	assert.True(t, ban.Matches(user, nil))
}
