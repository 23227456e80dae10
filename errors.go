/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

// Error is a workaround to allow for immutable error strings
// which satisfy the error interface.
type Error string

func (err Error) Error() string {
	return string(err)
}

func (err Error) String() string {
	return string(err)
}

// Wire codec errors.
const (
	ErrMessageTooShort Error = "did not receive enough data from the peer"
	ErrMessageTooLong  Error = "received data from the peer is too long"
	ErrWhitespace      Error = "message was all whitespace"
	ErrPrefixedClient  Error = "client sent a prefixed message"
	ErrTooManyParams   Error = "too many parameters"
	ErrEmptyVerb       Error = "message has no command verb"
)

// Registration/handler errors.
const (
	ErrInvalidCapCmd  Error = "invalid CAP subcommand"
	ErrMissingParams  Error = "missing parameters"
	ErrUserInUse      Error = "this username is currently in use"
	ErrUserAlreadySet Error = "you have already registered"
	ErrNickInUse      Error = "this nickname is currently in use"
	ErrNickAlreadySet Error = "you already have that nickname"
	ErrNotImplemented Error = "that command is not implemented"
	ErrNotRegistered  Error = "you must register first"
	ErrNoNickGiven    Error = "no nickname given"
	ErrNoSuchNick     Error = "nick not found"
	ErrNoSuchChan     Error = "channel not found"
	ErrInsuffPerms    Error = "insufficient permissions"
	ErrUnknownMode    Error = "unknown mode"
	ErrModeAlreadySet Error = "mode already set"
	ErrModeNotSet     Error = "mode is not set"
)

// Channel engine errors (C4).
const (
	ErrBadChannelName  Error = "invalid channel name"
	ErrBannedFromChan  Error = "cannot join channel (banned)"
	ErrBadChannelKey   Error = "cannot join channel (+k)"
	ErrChannelIsFull   Error = "cannot join channel (+l)"
	ErrInviteOnlyChan  Error = "cannot join channel (+i)"
	ErrSecureOnlyChan  Error = "cannot join channel (+S)"
	ErrOperOnlyChan    Error = "cannot join channel (+O)"
	ErrNeedRegNick     Error = "cannot join channel (+R)"
	ErrTooManyChannels Error = "you have joined too many channels"
	ErrNotOnChannel    Error = "you're not on that channel"
	ErrUserNotInChan   Error = "they aren't on that channel"
	ErrNoSuchBan       Error = "no such ban mask"
	ErrBanListFull     Error = "channel ban list is full"
	ErrBanAlreadySet   Error = "that mask is already on the list"
	ErrInvalidExtban   Error = "invalid extended ban prefix"
	ErrExtbanNotOnList Error = "that extban type is not valid on this list"
	ErrCannotSendToChan Error = "cannot send to channel (muted)"
)

// Server-link errors (C8).
const (
	ErrAlreadyConnecting Error = "a connection attempt to this peer is already in progress"
	ErrHoldTimeNotElapsed Error = "autoconnect hold time has not elapsed"
	ErrDNSPending        Error = "DNS resolution for this peer has not completed"
	ErrDNSFailed         Error = "DNS resolution for this peer failed"
	ErrNoConfigBlock     Error = "no connect block configured for this peer"
	ErrHandshakeTimeout  Error = "TLS handshake timed out"
	ErrSendqExceeded     Error = "sendq exceeded for this peer"
	ErrBadLinkPassword   Error = "peer presented an incorrect link password"
	ErrPeerAlreadyLinked Error = "a peer with this name is already linked"
)
