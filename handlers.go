/*
   Copyright (c) 2020, btnmasher
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

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// All of command handler functions do not return an error. Instead it
// must process all error conditions relating to the command and reply
// to the user in the correct way specified by RFC2812.

// HandleQuit processes a QUIT command.
//
// The connection will be scheduled for immediate deadline, and the
// server will broadcast the QUIT message to all channels the user is
// joined to.
//
//    Command: QUIT
//    Parameters: :<reason>
func HandleQuit(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	conn.doQuit(msg.Text)
}

// HandleNick processes a NICK command.
//
// First, it checks if the current nickname is in use by the user issuing
// the command; by another user on the server; or disallowed by the server
// configuration. Then it checks the validity of the nickname formatting
// before finally, if all of the requirements are met, sets the User object
// Nick field to the specified name in the command parameters.
//
//    Command: NICK
//    Parameters: <nickname>
func HandleNick(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg
	ok := true

	if !enoughParams(msg, 1) {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Code = ReplyNicknameInUse

	if conn.user.Nick() == msg.Params[0] {
		reply.Text = ErrNickAlreadySet.String()
		ok = false
	}

	if ok && conn.server.Nicks.Exists(strings.ToLower(msg.Params[0])) {
		reply.Text = ErrNickInUse.String()
		ok = false
	}

	// TODO: Nick restriction check

	// TODO: Nick formatting checks
	// This ties into configurations such as:
	// - nick length
	// - reserved nicks

	if ok { // Nick formatting check stub
		old := strings.ToLower(conn.user.Nick())
		conn.user.SetNick(msg.Params[0])
		reply.Code = ReplyNone
		reply.Command = CmdNick
		reply.Text = ""

		if conn.registered {
			conn.server.Nicks.Rename(old, strings.ToLower(msg.Params[0]))
			nickMsg := conn.newMessage()
			nickMsg.Sender = conn.user.Hostmask()
			nickMsg.Command = CmdNick
			nickMsg.Params = []string{msg.Params[0]}
			sendtoCommonChannels(conn.user, nickMsg, conn.user.ID())
			msgpool.Recycle(nickMsg)
		}
	}

	reply.Params = []string{conn.user.Nick()}

	conn.Write(reply.RenderBuffer())
}

// HandleUser processes a USER command.
//
// First, it checks if the specieifed username is in use by the user issuing
// the command; by another user on the server; or disallowed by the server
// configuration. Then it checks the validity of the username formatting
// before finally, if all of the requirements are met, sets the User object
// Name field to the specified name in the command parameters.
//
//    Command: USER
//    Parameters: <username> <modemask> -0(unused)- :[realname]
func HandleUser(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 3) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	if len(conn.user.Nick()) < 1 {
		conn.ReplyNoNicknameGiven()
		return
	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)

	reply.Params = []string{conn.user.Nick()}
	reply.Code = ReplyAlreadyRegistered

	if len(conn.user.Name()) > 0 {
		reply.Text = ErrUserAlreadySet.String()
		conn.Write(reply.RenderBuffer())
		return
	}

	// TODO: Username restriction check

	// TODO: Username formatting checks
	// This ties into configurations such as:
	// - username length
	// - realname length
	// - reserved names

	conn.user.SetName(msg.Params[0])
	conn.user.SetRealname(msg.Text)
	conn.user.SetHostname(conn.remAddr)
	conn.user.SetRealHost(conn.remAddr)
	conn.registerUser()

	if !conn.capRequested || conn.capNegotiated {
		conn.ReplyWelcome()
		conn.ReplyISupport()
	}
}

// HandleCap processes the CAP command and sub commands for
// negotiating capabilties per the IRCv3.2 spec.
//
//    Command: CAP
//    Parameters: <subcommand> [param] :[capabiliy] [capability]
func HandleCap(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyInvalidCapCommand(msg.Command)
		return
	}

	conn.capRequested = true

	switch msg.Params[0] {
	case "LS":
		fallthrough
	case "LIST":
		// conn.ListCapabilities() // TODO: List capabilities
	case "REQ":
		if !enoughParams(msg, 2) {
			conn.ReplyNeedMoreParams(msg.Command)
		}
		// conn.HandleCapRequest(msg.Params[1]) // TODO: Capability request handler
	case "END":
		conn.capNegotiated = true
		if conn.registered {
			conn.ReplyWelcome()
			conn.ReplyISupport()
		}
	default:
		conn.ReplyInvalidCapCommand(msg.Command)
		return
	}
}

// HandlePrivmsg processes a PRIVMSG command.
//
// First, it checks if the specified nickname or channel exists; then
// checks if the sender is disallowed from sending the message by the
// sender's usermode. If all of the requirements are met, it sends
// the message to the intended recpient.
//
//    Command: PRIVMSG
//    Parameters: <target> :<text>
func HandlePrivmsg(ctx *MessageContext) {
	doChatMessage(ctx)
}

// HandleNotice processes a NOTICE command.
//
// First, it checks if the specified nickname or channel exists; then
// checks if the sender is disallowed from sending the message by the
// sender's usermode. If all of the requirements are met, it sends
// the message to the intended recpient.
//
//    Command: NOTICE
//    Parameters: <target> :<text>
func HandleNotice(ctx *MessageContext) {
	doChatMessage(ctx)
}

func doChatMessage(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) || len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	targetuser, uerr := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	targetchan, cerr := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))

	if uerr != nil && cerr != nil {
		log.Debug("irc: Chat Message: did not find target")
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	if targetchan != nil && targetchan.IsMuted(conn.user) {
		conn.ReplyCannotSendToChan(targetchan.Name())
		return
	}

	msg.Params = msg.Params[0:1] // Strip erroneous parameters.
	msg.Sender = conn.user.Hostmask()

	if targetuser != nil {
		targetuser.conn.Write(msg.RenderBuffer())
	} else {
		targetchan.Send(msg, conn.user.ID())
	}
}

// HandleJoin processes a JOIN command.
//
// The server will first check if the channel exists, if not,
// create a new channel. Then, the user will be added to the
// channel members if the the user has sufficient permissions;
// which are implied if the channel must first be created.
//
//    Command: JOIN
//    Prameters: <channel>
func HandleJoin(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	msg.Sender = conn.user.Hostmask()
	key := ""
	if len(msg.Params) > 1 {
		key = msg.Params[1]
	}
	msg.Params = msg.Params[0:1]

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))

	if err != nil {
		channel = NewChannel(msg.Params[0], conn.server.Extbans)
		conn.server.Channels.Add(strings.ToLower(msg.Params[0]), channel)
	} else {
		if channel.IsBanned(conn.user) {
			conn.ReplyBannedFromChan(channel.Name())
			return
		}
		if channel.ModeIsSet(ChanModeInviteOnly) && !channel.CanBypassInvite(conn.user) {
			conn.ReplyInviteOnlyChan(channel.Name())
			return
		}
		if chanKey := channel.Key(); chanKey != "" && key != chanKey {
			conn.ReplyBadChannelKey(channel.Name())
			return
		}
		if limit := channel.Limit(); limit > 0 && channel.Members.Length() >= limit {
			conn.ReplyChannelIsFull(channel.Name())
			return
		}
		if channel.RegisterJoin(conn.server.Limits.JoinFloodCount, conn.server.Limits.JoinFloodTime) {
			notice := conn.server.newMessage()
			notice.Command = CmdNotice
			notice.Params = []string{"*"}
			notice.Text = "Possible Join Flooder " + conn.user.Hostmask() + " on " +
				conn.server.Hostname() + " target: " + channel.Name()
			sendtoWallops(conn.server, notice)
			msgpool.Recycle(notice)
		}
	}

	if conn.user.Channels().Length() >= MaxJoinedChans {
		conn.ReplyTooManyChannels(channel.Name())
		return
	}

	if !channel.Join(conn.user, msg) {
		conn.ReplyNeedMoreParams(msg.Command)
	} else {
		conn.channels.Add(channel.Name(), channel)
		conn.user.Channels().Add(channel.Name(), channel)
		conn.ReplyChannelNames(channel)
	}
}

// HandleUserhost processes a USERHOST command originated from the client.
//
// The server will respond with the matching hostname of the requested nicks.
// Limit 5
//
//    Command: USERHOST
//    Parameters: <nickname1> [nickname2] [nickname3] [nickname4] [nickname5]
func HandleUserhost(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	hosts := []string{}

	var buffer bytes.Buffer

	for _, nick := range msg.Params {
		host, err := conn.server.Nicks.Get(strings.ToLower(nick))
		if err != nil {
			// TODO: Nick not fouind
			conn.ReplyNoSuchNick(nick)
			return
		}

		// TODO: Visibility permissions
		buffer.WriteString(nick)
		buffer.WriteString("=+")
		buffer.WriteString(host.Hostmask())
		hosts = append(hosts, buffer.String())
		buffer.Reset()

	}

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Command = ""
	reply.Code = ReplyUserHost
	reply.Params = []string{conn.user.Nick()}
	reply.Text = strings.Join(hosts, " ")

	conn.Write(reply.RenderBuffer())
}

// HandlePing processes a PING command originated from the client.
//
// The server will respond with the matching ping token.
//
//    Command: PING
//    Parameters: :<token>
func HandlePing(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Text = msg.Text
	reply.Command = CmdPong

	conn.Write(reply.RenderBuffer())
}

// HandlePong processes a PONG command in reply to a server sent PING command.
//
// Command: PONG
// Parameters: :<token>
func HandlePong(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if len(msg.Text) < 1 {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	conn.Lock()
	defer conn.Unlock()
	conn.lastPingRecv = msg.Text
}

// HandlePart processes a PART command.
//
// The user is removed from every named channel and the departure is
// relayed to the remaining members before the local membership
// bookkeeping is dropped.
//
//    Command: PART
//    Parameters: <channel>{,<channel>} [:<reason>]
func HandlePart(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	msg.Sender = conn.user.Hostmask()
	names := strings.Split(msg.Params[0], ",")
	msg.Params = msg.Params[0:1]

	for _, name := range names {
		channel, err := conn.server.Channels.Get(strings.ToLower(name))
		if err != nil {
			conn.ReplyNoSuchChan(name)
			continue
		}
		if _, err := channel.memberByID(conn.user.ID()); err != nil {
			conn.ReplyNotOnChannel(name)
			continue
		}

		msg.Params[0] = channel.Name()
		channel.Part(conn.user, msg)
		conn.channels.Del(channel.Name())
		conn.user.Channels().Del(channel.Name())
	}
}

// HandleTopic processes a TOPIC command.
//
// With no trailing text the current topic is queried; otherwise the
// topic is changed, gated by the channel's topic-lock mode, and the
// change relayed to every member.
//
//    Command: TOPIC
//    Parameters: <channel> [:<topic>]
func HandleTopic(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	if len(msg.Params) < 2 && msg.Text == "" {
		conn.ReplyChannelTopic(channel)
		return
	}

	if err := channel.SetTopic(msg.Text, conn.user); err != nil {
		conn.ReplyChanOpPrivsNeeded(channel.Name())
		return
	}

	msg.Sender = conn.user.Hostmask()
	msg.Params = []string{channel.Name()}
	sendtoChannel(channel, msg, "")
}

// HandleInvite processes an INVITE command, granting the named user a
// one-shot exemption from the channel's invite-only mode.
//
//    Command: INVITE
//    Parameters: <nickname> <channel>
func HandleInvite(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[1]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[1])
		return
	}

	target, err := conn.server.Nicks.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[0])
		return
	}

	if member, merr := channel.memberByID(conn.user.ID()); merr != nil || member.AccessLevel() < AlevelChanOp {
		conn.ReplyChanOpPrivsNeeded(channel.Name())
		return
	}

	channel.Invite(target)

	reply := conn.newMessage()
	defer msgpool.Recycle(reply)
	reply.Command = CmdInvite
	reply.Params = []string{target.Nick(), channel.Name()}
	conn.Write(reply.RenderBuffer())

	if target.conn != nil {
		invite := conn.newMessage()
		defer msgpool.Recycle(invite)
		invite.Sender = conn.user.Hostmask()
		invite.Command = CmdInvite
		invite.Params = []string{target.Nick(), channel.Name()}
		target.conn.Write(invite.RenderBuffer())
	}
}

// HandleKick processes a KICK command, removing a member from the
// channel and relaying the departure the same way PART does.
//
//    Command: KICK
//    Parameters: <channel> <nickname> [:<reason>]
func HandleKick(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 2) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	kicker, err := channel.memberByID(conn.user.ID())
	if err != nil || kicker.AccessLevel() < AlevelChanOp {
		conn.ReplyChanOpPrivsNeeded(channel.Name())
		return
	}

	victim, err := channel.memberByNick(msg.Params[1])
	if err != nil {
		conn.ReplyNoSuchNick(msg.Params[1])
		return
	}

	msg.Sender = conn.user.Hostmask()
	msg.Params = msg.Params[0:2]

	channel.Part(victim.User(), msg)
	victim.User().Channels().Del(channel.Name())
	if victim.User().conn != nil {
		victim.User().conn.channels.Del(channel.Name())
	}
}

// HandleMode processes a MODE command against a channel target.
//
// Parses the compound mode string via ApplyChannelModes, gated on the
// setter's access level, then relays the changes actually applied to
// every member.
//
//    Command: MODE
//    Parameters: <channel> [<modestring> [<mode arguments>...]]
func HandleMode(ctx *MessageContext) {
	conn, msg := ctx.Conn, ctx.Msg

	if !enoughParams(msg, 1) {
		conn.ReplyNeedMoreParams(msg.Command)
		return
	}

	channel, err := conn.server.Channels.Get(strings.ToLower(msg.Params[0]))
	if err != nil {
		conn.ReplyNoSuchChan(msg.Params[0])
		return
	}

	if len(msg.Params) < 2 {
		modestr, params := FormatModeString(existingChannelModes(channel))
		reply := conn.newMessage()
		defer msgpool.Recycle(reply)
		reply.Code = ReplyChannelModeIs
		reply.Params = append([]string{conn.user.Nick(), channel.Name(), modestr}, params...)
		conn.Write(reply.RenderBuffer())
		return
	}

	applied, errs, queries := ApplyChannelModes(channel, conn.user, msg.Params[1], msg.Params[2:], conn.server.Extbans)
	reportModeErrors(conn, channel, errs)

	for _, c := range queries {
		switch c {
		case 'b':
			conn.ReplyBanList(channel.Name(), channel.BanList.Entries())
		case 'e':
			conn.ReplyExceptList(channel.Name(), channel.ExceptList.Entries())
		case 'I':
			conn.ReplyInviteExList(channel.Name(), channel.InvexList.Entries())
		}
	}

	if len(applied) == 0 {
		return
	}

	msg.Sender = conn.user.Hostmask()

	chunkSize := conn.server.Limits.MaxModeChange
	if chunkSize <= 0 {
		chunkSize = len(applied)
	}

	for start := 0; start < len(applied); start += chunkSize {
		end := start + chunkSize
		if end > len(applied) {
			end = len(applied)
		}
		modestr, params := FormatModeString(applied[start:end])
		msg.Params = append([]string{channel.Name(), modestr}, params...)
		sendtoChannel(channel, msg, "")
	}
}

// reportModeErrors translates the mode engine's error set into
// client-facing numerics, sending at most one of each kind per
// invocation rather than one line per failed letter.
func reportModeErrors(conn *Conn, channel *Channel, errs []error) {
	sent := make(map[int]bool)

	for _, e := range errs {
		log.Debugf("irc: MODE error on %s from %s: %s", channel.Name(), conn.user.Nick(), e)

		if unknown, ok := e.(unknownModeError); ok {
			if !sent[ReplyUnknownMode] {
				sent[ReplyUnknownMode] = true
				conn.ReplyUnknownMode(unknown.char)
			}
			continue
		}
		if errors.Is(e, ErrInsuffPerms) {
			if !sent[ReplyChanOpPrivsNeeded] {
				sent[ReplyChanOpPrivsNeeded] = true
				conn.ReplyChanOpPrivsNeeded(channel.Name())
			}
			continue
		}
		if errors.Is(e, ErrUserNotInChan) {
			if !sent[ReplyNotOnChannel] {
				sent[ReplyNotOnChannel] = true
				conn.ReplyNotOnChannel(channel.Name())
			}
			continue
		}
		if errors.Is(e, ErrMissingParams) {
			if !sent[ReplyNeedMoreParams] {
				sent[ReplyNeedMoreParams] = true
				conn.ReplyNeedMoreParams(CmdMode)
			}
			continue
		}
	}
}

// existingChannelModes snapshots the channel's currently-set simple
// modes as ModeChange entries so MODE with no arguments can reuse
// FormatModeString to render the query reply.
func existingChannelModes(channel *Channel) []ModeChange {
	var changes []ModeChange
	for c, flag := range chanSimpleModes {
		if channel.ModeIsSet(flag) {
			changes = append(changes, ModeChange{Add: true, Char: c})
		}
	}
	if key := channel.Key(); key != "" {
		changes = append(changes, ModeChange{Add: true, Char: 'k', Param: key})
	}
	if limit := channel.Limit(); limit > 0 {
		changes = append(changes, ModeChange{Add: true, Char: 'l', Param: strconv.Itoa(limit)})
	}
	return changes
}

func registerHandlers(router *Router) {
	router.HandleClassed(CmdQuit, ClassUnregistered|ClassClient|ClassServer, HandleQuit)
	router.HandleClassed(CmdNick, ClassUnregistered|ClassClient, HandleNick)
	router.HandleClassed(CmdUser, ClassUnregistered, HandleUser)
	router.HandleClassed(CmdPing, ClassUnregistered|ClassClient|ClassServer, HandlePing)
	router.HandleClassed(CmdPong, ClassUnregistered|ClassClient|ClassServer, HandlePong)
	router.HandleClassed(CmdCap, ClassUnregistered|ClassClient, HandleCap)
	router.HandleClassed(CmdJoin, ClassClient, HandleJoin)
	router.HandleClassed(CmdPrivMsg, ClassClient, HandlePrivmsg)
	router.HandleClassed(CmdNotice, ClassClient, HandleNotice)
	router.HandleClassed(CmdUserhost, ClassClient, HandleUserhost)
	router.HandleClassed(CmdPart, ClassClient, HandlePart)
	router.HandleClassed(CmdTopic, ClassClient, HandleTopic)
	router.HandleClassed(CmdInvite, ClassClient, HandleInvite)
	router.HandleClassed(CmdKick, ClassClient, HandleKick)
	router.HandleClassed(CmdMode, ClassClient, HandleMode)
}
