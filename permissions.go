/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

// User permission levels on the server.
const (
	UPermBan uint8 = iota
	UPermNone
	UPermUser
	UPermHelpOp
	UPermNetOp
	UPermAdmin
	UPermServer
)

// AccessLevel is the channel-scoped gate a mode handler checks before
// allowing a setter to apply a mode change.
type AccessLevel uint8

const (
	AlevelNotOnChan AccessLevel = iota
	AlevelPeon
	AlevelHalfOp
	AlevelChanOp
	AlevelRemote
)
