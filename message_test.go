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

func TestMessageRenderWithSenderAndParams(t *testing.T) {
	msg := &Message{
		Sender:  "irc.example.org",
		Command: "MODE",
		Params:  []string{"#test", "+nt"},
	}
	assert.Equal(t, ":irc.example.org MODE #test +nt\r\n", msg.Render())
}

func TestMessageRenderWithTrailing(t *testing.T) {
	msg := &Message{
		Sender:  "alice!a@h",
		Command: "PRIVMSG",
		Params:  []string{"#test"},
		Text:    "hi there",
	}
	assert.Equal(t, ":alice!a@h PRIVMSG #test :hi there\r\n", msg.Render())
}

func TestMessageRenderNumeric(t *testing.T) {
	msg := &Message{
		Sender: "irc.example.org",
		Code:   353,
		Params: []string{"alice", "=", "#test"},
		Text:   "@alice",
	}
	assert.Equal(t, ":irc.example.org 353 alice = #test :@alice\r\n", msg.Render())
}

func TestMessagePoolRecycleScrubs(t *testing.T) {
	pool := NewMessagePool(4)
	msg := pool.New()
	msg.Command = "JOIN"
	msg.Sender = "alice"
	msg.Params = []string{"#test"}
	msg.Text = "hello"
	msg.Code = 1

	pool.Recycle(msg)

	recycled := pool.New()
	assert.Same(t, msg, recycled)
	assert.Empty(t, recycled.Command)
	assert.Empty(t, recycled.Sender)
	assert.Nil(t, recycled.Params)
	assert.Empty(t, recycled.Text)
	assert.Zero(t, recycled.Code)
}

func TestMessagePoolWarmupRespectsCapacity(t *testing.T) {
	pool := NewMessagePool(2)
	pool.Warmup(10)
	assert.LessOrEqual(t, len(pool.Messages), 2)
}
