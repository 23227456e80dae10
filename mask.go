/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package meshd

import "strings"

// globMatch reports whether s matches the IRC-style glob pattern,
// which supports '*' (any run, including empty) and '?' (any single
// character). Matching is case-sensitive; callers fold case first
// where IRC semantics call for it.
func globMatch(pattern, s string) bool {
	return globMatchAt(pattern, s, 0, 0)
}

func globMatchAt(pattern, s string, pi, si int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			// Collapse consecutive stars, then try every possible
			// split point for the remainder of the pattern.
			for pi < len(pattern) && pattern[pi] == '*' {
				pi++
			}
			if pi == len(pattern) {
				return true
			}
			for try := si; try <= len(s); try++ {
				if globMatchAt(pattern, s, pi, try) {
					return true
				}
			}
			return false
		case '?':
			if si >= len(s) {
				return false
			}
			pi++
			si++
		default:
			if si >= len(s) || s[si] != pattern[pi] {
				return false
			}
			pi++
			si++
		}
	}
	return si == len(s)
}

// matchHostmask reports whether the given user's full hostmask
// (nick!user@host) matches the given glob mask, case-folded per IRC
// ASCII casemapping.
func matchHostmask(user *User, mask string) bool {
	return globMatch(strings.ToLower(mask), strings.ToLower(user.RealHostmask()))
}
