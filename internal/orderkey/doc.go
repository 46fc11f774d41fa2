// Package orderkey generates fractional-index order keys.
//
// A key is an "integer part" followed by an optional fraction, both written in
// base 62 (digits 0-9A-Za-z). The head character of the integer part encodes
// its length: 'a'..'z' for positive integers of 2..27 characters, 'A'..'Z'
// for negative ones. A fraction never ends in '0', so every key has exactly
// one spelling and byte-wise comparison of two keys matches their numeric
// order.
//
//	first, _ := orderkey.Between("", "")        // "a0"
//	next, _ := orderkey.Between(first, "")      // "a1"
//	mid, _ := orderkey.Between(first, next)     // "a0V"
//
// Appending at the end only bumps the integer part, which keeps keys short
// for the common "add to bottom" case. Repeated inserts between the same two
// neighbors lengthen the fraction instead of reusing a key.
package orderkey
