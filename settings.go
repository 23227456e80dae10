/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import "time"

// Limiter Constants
const (
	// Messages
	MaxMsgLength  int = 512
	MaxMsgParams      = 15
	MaxTagsLength int = 4096

	// Channels
	MaxChanLength  = 16
	MaxKickLength  = 400
	MaxTopicLength = 400
	MaxListItems      = 256
	MaxListItemsLarge = 512
	MaxModeChange     = 6

	// Users
	MaxNickLength  = 16
	MaxUserLength  = 16
	MaxVHostLength = 64
	MaxJoinedChans = 32
	MaxAwayLength  = 100

	// Server-to-server
	MaxModeParams  = 6
	MaxServerBatch = 4096
)

// Join-flood leaky-bucket defaults, ported from ircd-hybrid's
// GlobalSetOptions.joinfloodcount/joinfloodtime.
const (
	DefaultJoinFloodCount = 16
	DefaultJoinFloodTime  = 60 * time.Second
)

// Per-connection command pacing and sendq byte-limit defaults. PaceWait
// mirrors ircd-hybrid's pace_wait class option: a token bucket gating
// how fast a client's commands are processed, refilling PaceBurst
// tokens every PaceWait. SendQBytes is the class-configured outbound
// byte cap past which a socket is marked dead instead of blocking.
const (
	DefaultPaceWait   = 2 * time.Second
	DefaultPaceBurst  = 4
	DefaultSendQBytes = 1 << 20 // 1 MiB
)

// Limits groups every tunable threshold above into a single value so
// a caller can override any subset of them through Server.Limits
// without touching the package-level defaults.
type Limits struct {
	MaxMsgLength   int
	MaxMsgParams   int
	MaxTagsLength  int
	MaxChanLength  int
	MaxKickLength  int
	MaxTopicLength int
	MaxListItems   int
	MaxModeChange  int
	MaxNickLength  int
	MaxUserLength  int
	MaxVHostLength int
	MaxJoinedChans int
	MaxAwayLength  int
	MaxModeParams  int
	MaxServerBatch int

	JoinFloodCount int
	JoinFloodTime  time.Duration

	PaceWait   time.Duration
	PaceBurst  int
	SendQBytes int
}

// DefaultLimits returns the Limits matching the package-level constants.
func DefaultLimits() Limits {
	return Limits{
		MaxMsgLength:   MaxMsgLength,
		MaxMsgParams:   MaxMsgParams,
		MaxTagsLength:  MaxTagsLength,
		MaxChanLength:  MaxChanLength,
		MaxKickLength:  MaxKickLength,
		MaxTopicLength: MaxTopicLength,
		MaxListItems:   MaxListItems,
		MaxModeChange:  MaxModeChange,
		MaxNickLength:  MaxNickLength,
		MaxUserLength:  MaxUserLength,
		MaxVHostLength: MaxVHostLength,
		MaxJoinedChans: MaxJoinedChans,
		MaxAwayLength:  MaxAwayLength,
		MaxModeParams:  MaxModeParams,
		MaxServerBatch: MaxServerBatch,
		JoinFloodCount: DefaultJoinFloodCount,
		JoinFloodTime:  DefaultJoinFloodTime,
		PaceWait:       DefaultPaceWait,
		PaceBurst:      DefaultPaceBurst,
		SendQBytes:     DefaultSendQBytes,
	}
}
