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
)

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		input   string
		want    bool
	}{
		{"exact match", "evil.example", "evil.example", true},
		{"star wildcard", "*!*@evil.example", "mallory!m@evil.example", true},
		{"star wildcard no match", "*!*@evil.example", "mallory!m@good.example", false},
		{"question mark", "a?c", "abc", true},
		{"question mark no match", "a?c", "ac", false},
		{"trailing star", "foo*", "foobar", true},
		{"collapsed stars", "a**b", "axxxb", true},
		{"empty pattern matches empty", "", "", true},
		{"empty pattern no match nonempty", "", "a", false},
		{"star matches empty run", "a*b", "ab", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, globMatch(tt.pattern, tt.input))
		})
	}
}

func newTestUser(id, nick, name, host string) *User {
	user := NewUser(id)
	user.SetNick(nick)
	user.SetName(name)
	user.SetHostname(host)
	return user
}

func TestMatchHostmask(t *testing.T) {
	user := newTestUser("001AAAAAA", "Mallory", "m", "evil.example")
	assert.True(t, matchHostmask(user, "*!*@evil.example"))
	assert.True(t, matchHostmask(user, "*!*@EVIL.EXAMPLE"), "matching is case-folded")
	assert.False(t, matchHostmask(user, "*!*@good.example"))
}
