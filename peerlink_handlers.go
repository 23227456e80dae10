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

// handlePeerMessage dispatches one line read off a registered (or
// handshaking) peer link to the appropriate server-to-server command
// handler. Unlike RouteCommand, this dispatch has no SourceClass
// gating: anything arriving on a Peer's socket is, by construction,
// server-class traffic, and command handlers here apply their own
// PeerHandshake/PeerRegistered checks where the command demands it.
func handlePeerMessage(server *Server, peer *Peer, msg *Message) {
	switch msg.Command {
	case CmdPass:
		// For an outbound link the password the peer sends back is not
		// checked. For an inbound link the name isn't known yet (it arrives on
		// the SERVER line that follows), so stash the password and
		// validate it once that name is known.
		if peer.inbound && enoughParams(msg, 1) {
			peer.Lock()
			peer.pendingPass = msg.Params[0]
			peer.Unlock()
		}
	case CmdServer, CmdSvinfo:
		handlePeerServer(server, peer, msg)
	case CmdPing:
		handlePeerPing(server, peer, msg)
	case CmdPong:
		// Keepalive acknowledged; nothing further to track yet.
	case CmdUid, CmdEuid:
		handlePeerUID(server, peer, msg)
	case CmdNick:
		handlePeerNick(server, peer, msg)
	case CmdQuit:
		handlePeerQuit(server, peer, msg)
	case CmdSjoin:
		handlePeerSjoin(server, peer, msg)
	case CmdTmode:
		handlePeerTmode(server, peer, msg)
	case CmdBmask:
		handlePeerBmask(server, peer, msg)
	case CmdSquit:
		handlePeerSquit(server, peer, msg)
	default:
		log.Debugf("irc: unhandled peer command [%s] from [%s]", msg.Command, peer.Name())
	}
}

// handlePeerServer completes the handshake: the peer's own SERVER
// line is its registration notice. A peer already Registered
// re-sending SERVER is ignored rather than re-registered.
//
// For an inbound peer (accepted on the listen socket, name unknown
// until now) this is also where authentication happens: the name
// must match a configured connect block and the password stashed
// from the PASS line that preceded this one must match that block's
// password. An outbound peer (dialed via Server.Connect) already has
// its block and its server.Peers slot from Connect, so here it only
// needs the name recorded.
func handlePeerServer(server *Server, peer *Peer, msg *Message) {
	if peer.State() == PeerRegistered {
		return
	}
	if !enoughParams(msg, 1) {
		return
	}

	name := msg.Params[0]

	if peer.inbound {
		block, ok := server.ConnectBlock(name)
		if !ok {
			log.Warnf("irc: rejecting inbound peer [%s]: %s", name, ErrNoConfigBlock)
			peer.Dead()
			return
		}

		peer.RLock()
		pass := peer.pendingPass
		peer.RUnlock()

		if block.Password != "" && pass != block.Password {
			log.Warnf("irc: rejecting inbound peer [%s]: %s", name, ErrBadLinkPassword)
			peer.Dead()
			return
		}

		peer.Lock()
		peer.block = block
		peer.Unlock()

		if err := server.Peers.Add(name, peer); err != nil {
			log.Warnf("irc: rejecting inbound peer [%s]: %s", name, err)
			peer.Dead()
			return
		}

		server.sendHandshake(peer)
	}

	peer.Lock()
	peer.name = name
	peer.Unlock()

	peerUser := NewUser(name)
	peerUser.SetIsServer(true)
	peerUser.SetNick(name)
	peerUser.SetHostname(name)
	peer.Lock()
	peer.user = peerUser
	peer.Unlock()

	peer.setState(PeerRegistered)
	log.Infof("irc: peer [%s] registered", name)
}

// handlePeerPing answers a peer PING with our own PONG, mirroring
// Conn's client-facing keepalive but addressed peer-to-peer.
func handlePeerPing(server *Server, peer *Peer, msg *Message) {
	pong := server.newMessage()
	defer msgpool.Recycle(pong)

	pong.Command = CmdPong
	pong.Params = []string{server.Hostname()}
	if len(msg.Params) > 0 {
		pong.Text = msg.Params[0]
	}
	peer.Write(pong.RenderBuffer())
}

// handlePeerUID introduces a remote client bursted or propagated by
// peer, parented to the peer's own server identity so From() correctly
// reports the uplink a remote user was learned from.
//
//	UID <nick> <hopcount> <ts> <usermodes> <user> <host> <ip> <uid> :<realname>
func handlePeerUID(server *Server, peer *Peer, msg *Message) {
	if !enoughParams(msg, 8) {
		return
	}

	nick := msg.Params[0]
	uid := msg.Params[7]

	remote := NewUser(uid)
	remote.SetNick(nick)
	remote.SetName(msg.Params[4])
	remote.SetHostname(msg.Params[5])
	remote.SetRealHost(msg.Params[5])
	remote.SetSockAddr(msg.Params[6])
	if len(msg.Text) > 0 {
		remote.SetRealname(msg.Text)
	}
	if peer.user != nil {
		remote.SetFrom(peer.user)
	}

	server.Users.Add(uid, remote)
	server.Nicks.Add(strings.ToLower(nick), remote)
}

// handlePeerNick renames a remote user already known to this server,
// mirroring HandleNick's local rename path.
func handlePeerNick(server *Server, peer *Peer, msg *Message) {
	if !enoughParams(msg, 1) || msg.Sender == "" {
		return
	}
	user, err := server.Users.Get(msg.Sender)
	if err != nil {
		return
	}
	old := strings.ToLower(user.Nick())
	user.SetNick(msg.Params[0])
	server.Nicks.Rename(old, strings.ToLower(msg.Params[0]))
}

// handlePeerQuit removes a remote user torn down on its origin server,
// parting it from every channel it held membership in.
func handlePeerQuit(server *Server, peer *Peer, msg *Message) {
	if msg.Sender == "" {
		return
	}
	user, err := server.Users.Get(msg.Sender)
	if err != nil {
		return
	}

	user.Channels().ForEach(func(channel *Channel) {
		channel.Part(user, msg)
	})

	server.Nicks.Del(strings.ToLower(user.Nick()))
	server.Users.Del(msg.Sender)
}

// handlePeerSjoin applies a channel burst:
//
//	SJOIN <ts> <channel> <modes> [mode params...] :<@|+ prefixed nicks>
//
// Membership is added with Channel.Join directly, skipping HandleJoin's
// ban/key/limit checks, matching ts6 burst semantics: a burst is
// authoritative, not subject to local join policy.
func handlePeerSjoin(server *Server, peer *Peer, msg *Message) {
	if !enoughParams(msg, 3) {
		return
	}

	cname := msg.Params[1]
	modestr := msg.Params[2]
	modeParams := msg.Params[3:]

	channel, err := server.Channels.Get(strings.ToLower(cname))
	if err != nil {
		channel = NewChannel(cname, server.Extbans)
		server.Channels.Add(strings.ToLower(cname), channel)
	}

	applyBurstModes(channel, modestr, modeParams)

	if msg.Text == "" {
		return
	}

	for _, tok := range strings.Fields(msg.Text) {
		flags, nick := splitSjoinPrefix(tok)
		user, err := server.Nicks.Get(strings.ToLower(nick))
		if err != nil {
			continue
		}
		if !channel.Members.Exists(user.ID()) {
			if channel.Join(user, msg) {
				user.Channels().Add(channel.Name(), channel)
			}
		}
		if flags != 0 {
			if member, err := channel.Members.Get(user.ID()); err == nil {
				member.AddFlag(flags)
			}
		}
	}
}

// applyBurstModes sets a channel's simple/key/limit modes from a burst
// line directly, bypassing ApplyChannelModes' access-level gate since
// a burst carries no local setter to check permissions against.
func applyBurstModes(channel *Channel, modestr string, params []string) {
	pi := 0
	nextParam := func() (string, bool) {
		if pi >= len(params) {
			return "", false
		}
		p := params[pi]
		pi++
		return p, true
	}

	for i := 0; i < len(modestr); i++ {
		c := modestr[i]
		switch {
		case c == 'k':
			if p, ok := nextParam(); ok {
				channel.setKey(p)
			}
		case c == 'l':
			if p, ok := nextParam(); ok {
				channel.setLimit(p)
			}
		case chanSimpleModes[c] != 0:
			channel.addMode(chanSimpleModes[c])
		}
	}
}

// splitSjoinPrefix splits a burst member token such as "@+alice" into
// the status flags it grants and the bare nick.
func splitSjoinPrefix(tok string) (flags uint32, nick string) {
	i := 0
	for i < len(tok) {
		switch tok[i] {
		case '~':
			flags |= MemberOwner
		case '@':
			flags |= MemberOp
		case '%':
			flags |= MemberHalfOp
		case '+':
			flags |= MemberVoice
		default:
			return flags, tok[i:]
		}
		i++
	}
	return flags, ""
}

// handlePeerTmode applies a remote MODE change to a channel, relaying
// it on to every other registered peer (split-horizon) and to local
// members once applied.
//
//	TMODE <ts> <channel> <modestring> [params...]
func handlePeerTmode(server *Server, peer *Peer, msg *Message) {
	if !enoughParams(msg, 3) {
		return
	}

	cname := msg.Params[1]
	modestr := msg.Params[2]
	var params []string
	if len(msg.Params) > 3 {
		params = msg.Params[3:]
	}

	channel, err := server.Channels.Get(strings.ToLower(cname))
	if err != nil {
		return
	}

	applied, _, _ := ApplyChannelModes(channel, nil, modestr, params, server.Extbans)
	if len(applied) == 0 {
		return
	}

	letters, outParams := FormatModeString(applied)
	relay := server.newMessage()
	defer msgpool.Recycle(relay)

	relay.Sender = msg.Sender
	relay.Command = CmdMode
	relay.Params = append([]string{cname, letters}, outParams...)

	channel.Send(relay, "")
	sendtoServers(server, msg, peer)
}

// handlePeerBmask bulk-populates a channel's ban, exception, or invex
// list from a burst line:
//
//	BMASK <ts> <channel> <b|e|I> :<mask1> <mask2> ...
func handlePeerBmask(server *Server, peer *Peer, msg *Message) {
	if !enoughParams(msg, 3) || msg.Text == "" {
		return
	}

	cname := msg.Params[1]
	class := msg.Params[2]
	if len(class) != 1 {
		return
	}

	channel, err := server.Channels.Get(strings.ToLower(cname))
	if err != nil {
		return
	}

	for _, mask := range strings.Fields(msg.Text) {
		_ = channel.addBan(class[0], mask, "*", server.Extbans)
	}
}

// handlePeerSquit tears down a peer link announced dead by its uplink
// (or by itself), removing it from the peer table. Remote users that
// were introduced via this peer are left in place; a future EOB/QUIT
// burst from the remaining network is expected to clean those up,
// matching how a split is usually resolved in stages.
func handlePeerSquit(server *Server, peer *Peer, msg *Message) {
	name := peer.Name()
	if len(msg.Params) > 0 {
		name = msg.Params[0]
	}
	if p, err := server.Peers.Get(name); err == nil {
		p.Dead()
	}
	server.Peers.Del(name)
}
