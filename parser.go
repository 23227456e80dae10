/*
   Copyright (c) 2023, btnmasher
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

import "strings"

// Parse takes IRC-formatted text from a client-facing listener into a
// message object. Will return an error if the message doesn't fit the
// protocol. Clients are never allowed to send a prefixed message
//: a leading ':' is rejected outright here. Use
// ParseServer for the permissive peer-link variant.
func Parse(data string) (*Message, error) {
	if len(data) > 0 && data[0] == ':' {
		return nil, ErrPrefixedClient
	}
	return parse(data, false)
}

// ParseServer takes IRC-formatted text from a peer-link reader into a
// message object. Unlike Parse, a leading ':prefix' is accepted and
// captured into Message.Sender: server-origin lines use server names
// or 3-9 byte ids.
func ParseServer(data string) (*Message, error) {
	return parse(data, true)
}

func parse(data string, allowPrefix bool) (*Message, error) {
	if len(data) < 1 {
		return nil, ErrMessageTooShort
	}

	if len(data) > MaxMsgLength {
		return nil, ErrMessageTooLong
	}

	data = strings.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrWhitespace
	}

	msg := msgpool.New()

	if data[0] == ':' {
		if !allowPrefix {
			msgpool.Recycle(msg)
			return nil, ErrPrefixedClient
		}

		rest := data[1:]
		split := strings.SplitN(rest, " ", 2)
		msg.Sender = split[0]

		if len(split) < 2 {
			msgpool.Recycle(msg)
			return nil, ErrEmptyVerb
		}

		data = split[1]
	}

	// Split off the trailing parameter, introduced by " :", before
	// tokenizing the rest on whitespace so an embedded colon inside the
	// trailing text is never mistaken for another split point.
	var trailing string
	hasTrailing := false

	if idx := strings.Index(data, " :"); idx >= 0 {
		trailing = data[idx+2:]
		hasTrailing = true
		data = data[:idx]
	} else if strings.HasPrefix(data, ":") {
		trailing = data[1:]
		hasTrailing = true
		data = ""
	}

	fields := strings.Fields(data)
	if len(fields) == 0 {
		msgpool.Recycle(msg)
		return nil, ErrEmptyVerb
	}

	msg.Command = strings.ToUpper(fields[0])
	msg.Params = fields[1:]

	// MaxMsgParams counts the trailing parameter as well, so at most
	// MaxMsgParams-1 (14) middle parameters are accepted.
	if len(msg.Params) >= MaxMsgParams {
		return nil, ErrTooManyParams
	}

	if hasTrailing {
		msg.Text = trailing
	}

	return msg, nil
}
