/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected error
	}{
		{
			name:     "valid message",
			input:    "PRIVMSG nick1!someuser@irc.somehost.org :I am the client\r\n",
			expected: nil,
		},
		{
			name:     "too many parameters",
			input:    "PRIVMSG 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 :I am the client\r\n",
			expected: ErrTooManyParams,
		},
		{
			name:     "client prefixed is rejected",
			input:    ":prefix PRIVMSG nick1!someuser@irc.somehost.org :I am the client\r\n",
			expected: ErrPrefixedClient,
		},
		{
			name:     "all whitespace",
			input:    "   \r\n",
			expected: ErrWhitespace,
		},
		{
			name:     "too long",
			input:    fmt.Sprint(strings.Repeat("a", MaxMsgLength), "\r\n"),
			expected: ErrMessageTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			assert.Equal(t, tt.expected, err)
		})
	}
}

func TestParseTrailingBoundary(t *testing.T) {
	msg, err := Parse("JOIN #test :with a trailing phrase\r\n")
	require.NoError(t, err)
	assert.Equal(t, "JOIN", msg.Command)
	assert.Equal(t, []string{"#test"}, msg.Params)
	assert.Equal(t, "with a trailing phrase", msg.Text)
}

func TestParseNoTrailing(t *testing.T) {
	msg, err := Parse("MODE #test +o bob\r\n")
	require.NoError(t, err)
	assert.Equal(t, "MODE", msg.Command)
	assert.Equal(t, []string{"#test", "+o", "bob"}, msg.Params)
	assert.Empty(t, msg.Text)
}

func TestParseServerAllowsPrefix(t *testing.T) {
	msg, err := ParseServer(":001AAAAAA SJOIN 12345 #test +nt :@001AAAAAA\r\n")
	require.NoError(t, err)
	assert.Equal(t, "001AAAAAA", msg.Sender)
	assert.Equal(t, "SJOIN", msg.Command)
	assert.Equal(t, "@001AAAAAA", msg.Text)
}

func TestParseServerEmptyVerbAfterPrefix(t *testing.T) {
	_, err := ParseServer(":001AAAAAA\r\n")
	assert.Equal(t, ErrEmptyVerb, err)
}

func TestParseRoundTrip(t *testing.T) {
	// Reserializing a parsed message should preserve the trailing
	// boundary: a parsed trailing parameter lands in Text, and Render
	// always writes a non-empty Text back after " :".
	msg, err := Parse("PRIVMSG #test :hello there\r\n")
	require.NoError(t, err)
	msg.Sender = ""
	rendered := msg.Render()
	assert.Equal(t, "PRIVMSG #test :hello there\r\n", rendered)
}

func TestParseCommandUppercased(t *testing.T) {
	msg, err := Parse("join #test\r\n")
	require.NoError(t, err)
	assert.Equal(t, "JOIN", msg.Command)
}
