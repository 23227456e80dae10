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
	"sync"
	"time"
)

// User holds all of the state in the context of a connected user, peer
// server, or unregistered connection. A local client's from pointer
// is itself; a remote client's from is the local peer that
// introduced it.
type User struct {
	sync.RWMutex

	id            string
	nick          string
	name          string
	host          string
	real          string
	realHost      string
	sockAddr      string
	vanityHost    string
	vanityEnabled bool
	perm          uint8
	mode          uint64

	isServer bool
	account  string
	certfp   string
	away     string
	serial   uint64

	created time.Time

	from     *User
	channels *ChanMap

	conn *Conn
}

// NewUser returns a new instance of a user object with the given id.
// Its from pointer defaults to itself, matching the invariant that a
// freshly accepted local client is its own uplink until a remote
// client is introduced by a peer and reparented with SetFrom.
func NewUser(id string) *User {
	user := &User{
		id:       id,
		perm:     UPermUser,
		created:  time.Now(),
		channels: NewChanMap(),
	}
	user.from = user
	return user
}

// Hostmask returns the string form of the full IRC hostmask.
// It will return the Vanity hostname insteead of the regular
// hostname if VanityEnabled is set to true, and the VanityHost
// is set in the User object.
//
// <nick>!<username>@<hostname|vanityhost>
func (user *User) Hostmask() string {
	user.RLock()
	defer user.RUnlock()
	var buffer bytes.Buffer

	buffer.WriteString(user.nick)
	buffer.WriteString("!")
	buffer.WriteString(user.name)
	buffer.WriteString("@")

	if user.vanityEnabled && len(user.vanityHost) > 0 {
		buffer.WriteString(user.vanityHost)
	} else {
		buffer.WriteString(user.host)
	}

	return buffer.String()
}

// RealHostmask returns the string form of the full IRC hostmask.
// It will not return the Vanity hostname even if VanityEnabled
// is set to true.
//
// <nick>!<username>@<hostname>
func (user *User) RealHostmask() string {
	user.RLock()
	defer user.RUnlock()
	var buffer bytes.Buffer

	buffer.WriteString(user.nick)
	buffer.WriteString("!")
	buffer.WriteString(user.name)
	buffer.WriteString("@")
	buffer.WriteString(user.host)

	return buffer.String()
}

// Nick returns the nick field of the user in a
// concurrency-safe manner.
func (user *User) Nick() string {
	user.RLock()
	defer user.RUnlock()
	return user.nick
}

// SetNick sets the nick field of the user in a
// concurrency-safe manner.
func (user *User) SetNick(new string) {
	user.Lock()
	defer user.Unlock()
	user.nick = new
}

// Name returns the username field of the user in a
// concurrency-safe manner.
func (user *User) Name() string {
	user.RLock()
	defer user.RUnlock()
	return user.name
}

// SetName sets the username field of the user in a
// concurrency-safe manner.
func (user *User) SetName(new string) {
	user.Lock()
	defer user.Unlock()
	user.name = new
}

// Realname returns the realname field of the user in a
// concurrency-safe manner.
func (user *User) Realname() string {
	user.RLock()
	defer user.RUnlock()
	return user.real
}

// SetRealname sets the realname field of the user in a
// concurrency-safe manner.
func (user *User) SetRealname(new string) {
	user.Lock()
	defer user.Unlock()
	user.real = new
}

// SetHostname sets the hostname field of the user in a
// concurrency-safe manner.
func (user *User) SetHostname(new string) {
	user.Lock()
	defer user.Unlock()
	user.host = new
}

// VanityHost returns the vanityhost field of the user in a
// concurrency-safe manner.
func (user *User) VanityHost() string {
	user.RLock()
	defer user.RUnlock()
	return user.vanityHost
}

// SetVanityHost sets the vanityhost field of the user in a
// concurrency-safe manner.
func (user *User) SetVanityHost(new string) {
	user.Lock()
	defer user.Unlock()
	user.vanityHost = new
}

// Permission returns the permission field of the user in a
// concurrency-safe manner.
func (user *User) Permission() uint8 {
	user.RLock()
	defer user.RUnlock()
	return user.perm
}

// SetPermission the permission field of the user in a
// concurrency-safe manner.
func (user *User) SetPermission(new uint8) {
	user.Lock()
	defer user.Unlock()
	user.perm = new
}

// Mode returns the mode field of the user in a
// concurrency-safe manner.
func (user *User) Mode() uint64 {
	user.RLock()
	defer user.RUnlock()
	return user.mode
}

// AddMode appends the specified mode flag to the user in a
// concurrency-safe manner.
func (user *User) AddMode(umode uint64) {
	user.Lock()
	defer user.Unlock()
	user.mode |= umode
}

// DelMode removes the specified mode flag from the user in a
// concurrency-safe manner.
func (user *User) DelMode(umode uint64) {
	user.Lock()
	defer user.Unlock()
	user.mode &^= umode
}

// ModeIsSet checks if a given user mode is currently
// set in a concurrency-safe manner.
func (user *User) ModeIsSet(umode uint64) bool {
	user.Lock()
	defer user.Unlock()
	return (user.mode&umode == umode)
}

// VanityEnabled returns the vanityenabled field of the user in a
// concurrency-safe manner.
func (user *User) VanityEnabled() bool {
	user.RLock()
	defer user.RUnlock()
	return user.vanityEnabled
}

// SetVanityEnabled the vanityenabled field of the user in a
// concurrency-safe manner.
func (user *User) SetVanityEnabled(new bool) {
	user.Lock()
	defer user.Unlock()
	user.vanityEnabled = new
}

// HigherPerms checks if the given target User has a higher
// permission level than the Given user being checked.
func (user *User) HigherPerms(target uint8) bool {
	user.RLock()
	defer user.RUnlock()
	return user.perm > target
}

// ID returns the client's stable short id. Local clients and remote
// clients introduced by a peer both carry one; it never
// changes for the lifetime of the client, unlike the nick.
func (user *User) ID() string {
	user.RLock()
	defer user.RUnlock()
	return user.id
}

// From returns the client's uplink: itself for a local client, or the
// local peer that introduced it for a remote client.
func (user *User) From() *User {
	user.RLock()
	defer user.RUnlock()
	return user.from
}

// SetFrom reparents a client onto a peer uplink. Used when a remote
// client is introduced across a server link.
func (user *User) SetFrom(peer *User) {
	user.Lock()
	defer user.Unlock()
	user.from = peer
}

// IsLocal reports whether the client is directly connected to this
// server rather than introduced by a peer link.
func (user *User) IsLocal() bool {
	user.RLock()
	defer user.RUnlock()
	return user.from == user
}

// IsServer reports whether this client represents a peer server
// rather than a human user.
func (user *User) IsServer() bool {
	user.RLock()
	defer user.RUnlock()
	return user.isServer
}

// SetIsServer marks the client as representing a peer server link.
func (user *User) SetIsServer(new bool) {
	user.Lock()
	defer user.Unlock()
	user.isServer = new
}

// Account returns the services account label bound to the client, or
// an empty string if the client hasn't authenticated to services.
func (user *User) Account() string {
	user.RLock()
	defer user.RUnlock()
	return user.account
}

// SetAccount sets the services account label of the client.
func (user *User) SetAccount(new string) {
	user.Lock()
	defer user.Unlock()
	user.account = new
}

// CertFP returns the TLS client certificate fingerprint presented at
// connection time, or an empty string if none was presented.
func (user *User) CertFP() string {
	user.RLock()
	defer user.RUnlock()
	return user.certfp
}

// SetCertFP records the TLS client certificate fingerprint.
func (user *User) SetCertFP(new string) {
	user.Lock()
	defer user.Unlock()
	user.certfp = new
}

// Away returns the client's away message. An empty string means the
// client is not marked away.
func (user *User) Away() string {
	user.RLock()
	defer user.RUnlock()
	return user.away
}

// SetAway sets the client's away message; pass an empty string to
// clear the away status.
func (user *User) SetAway(new string) {
	user.Lock()
	defer user.Unlock()
	user.away = new
}

// IsAway reports whether the client currently has an away message set.
func (user *User) IsAway() bool {
	user.RLock()
	defer user.RUnlock()
	return len(user.away) > 0
}

// SockAddr returns the raw socket address string the client connected
// from, used for ban/glob matching distinct from the resolved host.
func (user *User) SockAddr() string {
	user.RLock()
	defer user.RUnlock()
	return user.sockAddr
}

// SetSockAddr sets the raw socket address string of the client.
func (user *User) SetSockAddr(new string) {
	user.Lock()
	defer user.Unlock()
	user.sockAddr = new
}

// RealHost returns the unmasked resolved hostname of the client,
// regardless of any vanity host setting.
func (user *User) RealHost() string {
	user.RLock()
	defer user.RUnlock()
	return user.realHost
}

// SetRealHost sets the unmasked resolved hostname of the client.
func (user *User) SetRealHost(new string) {
	user.Lock()
	defer user.Unlock()
	user.realHost = new
}

// Created returns the timestamp the client was instantiated, used for
// WHOIS signon-time and nick collision tie-breaking across links.
func (user *User) Created() time.Time {
	user.RLock()
	defer user.RUnlock()
	return user.created
}

// NextSerial increments and returns the client's fan-out serial. The
// fan-out helpers do not stamp it on messages; sendtoCommonChannels
// suppresses duplicate deliveries with a per-call set of seen ids.
func (user *User) NextSerial() uint64 {
	user.Lock()
	defer user.Unlock()
	user.serial++
	return user.serial
}

// Channels returns the client's channel membership set, keyed by
// folded channel name. Every client, local or remote, carries one so
// QUIT and common-channel fan-out never need to scan the full channel
// table.
func (user *User) Channels() *ChanMap {
	user.RLock()
	defer user.RUnlock()
	return user.channels
}
