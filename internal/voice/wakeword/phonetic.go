package wakeword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// phoneticThreshold is the Jaro-Winkler floor for windows that sound like the
// wake word. It sits below the fuzzy threshold so that spellings such as
// "hey didgy gov" are accepted while unrelated text with a similar sound
// pattern is not.
const phoneticThreshold = 0.70

// phoneticCodes returns the Double Metaphone codes of s with spaces removed.
// Empty codes are dropped.
func phoneticCodes(s string) map[string]struct{} {
	p, alt := matchr.DoubleMetaphone(strings.ReplaceAll(s, " ", ""))
	codes := make(map[string]struct{}, 2)
	if p != "" {
		codes[p] = struct{}{}
	}
	if alt != "" {
		codes[alt] = struct{}{}
	}
	return codes
}

// soundsLike reports whether a and b share a Double Metaphone code.
func soundsLike(a, b string) bool {
	ca, cb := phoneticCodes(a), phoneticCodes(b)
	if len(ca) > len(cb) {
		ca, cb = cb, ca
	}
	for c := range ca {
		if _, ok := cb[c]; ok {
			return true
		}
	}
	return false
}
