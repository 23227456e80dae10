/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import "strings"

// This file holds the sendto_* fan-out family: every place a message
// needs to reach more than one socket goes through one of these
// instead of a hand-rolled ForEach loop, so the common-channel dedup
// and local-vs-remote skip logic lives in one place.

// sendtoChannel writes msg to every local member of channel except
// the client whose id matches excludeID.
func sendtoChannel(channel *Channel, msg *Message, excludeID string) {
	channel.Send(msg, excludeID)
}

// sendtoCommonChannels writes msg once to every local client that
// shares at least one channel with user, skipping the excluded id and
// never delivering the same message twice to a client on several
// shared channels at once (NICK/QUIT fan-out).
func sendtoCommonChannels(user *User, msg *Message, excludeID string) {
	seen := make(map[string]bool)
	buf := msg.RenderBuffer()

	user.Channels().ForEach(func(channel *Channel) {
		channel.Members.ForEach(func(m *Member) {
			target := m.User()
			if target.ID() == excludeID || seen[target.ID()] {
				return
			}
			seen[target.ID()] = true
			if target.conn != nil {
				target.conn.Write(buf)
			}
		})
	})
}

// sendtoMatch writes msg to every local client whose hostmask matches
// the given glob mask, used for WALLOPS-style admin broadcasts scoped
// by mask instead of channel.
func sendtoMatch(server *Server, mask string, msg *Message) {
	buf := msg.RenderBuffer()
	lowerMask := strings.ToLower(mask)

	server.Users.ForEach(func(user *User) {
		if user.conn == nil {
			return
		}
		if globMatch(lowerMask, strings.ToLower(user.RealHostmask())) {
			user.conn.Write(buf)
		}
	})
}

// sendtoWallops writes msg to every local client with the
// flood-info usermode set, the closest equivalent of ircd's +w.
func sendtoWallops(server *Server, msg *Message) {
	buf := msg.RenderBuffer()

	server.Users.ForEach(func(user *User) {
		if user.conn != nil && user.ModeIsSet(UModeFloodInfo) {
			user.conn.Write(buf)
		}
	})
}

// sendtoServers relays msg to every registered peer link except the
// one it arrived from. Split-horizon: a peer never gets back a
// message it was the source of.
func sendtoServers(server *Server, msg *Message, exclude *Peer) {
	buf := msg.RenderBuffer()

	server.Peers.ForEach(func(peer *Peer) {
		if peer == exclude || peer.State() != PeerRegistered {
			return
		}
		peer.Write(buf)
	})
}
