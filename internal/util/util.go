// Package util holds the small cross-cutting helpers every other package in
// FLogFS pulls in: leveled tracing and the bit-flip-tolerant byte compare
// used to decode status bytes that live outside ECC protection.
package util

import (
	"log"
	"math/bits"
)

// Debug is the maximum DPrintf level that is actually logged. Raise it to
// trace allocator/recovery decisions during debugging.
const Debug uint64 = 1

// DPrintf logs format/a at level if level is at or below Debug.
func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}

// PopCount8 returns the number of set bits in x.
func PopCount8(x uint8) uint8 {
	return uint8(bits.OnesCount8(x))
}

// FlipDistance returns the Hamming distance between a and b, i.e. the number
// of bit positions at which they differ.
func FlipDistance(a, b uint8) uint8 {
	return PopCount8(a ^ b)
}

// NearStatus reports whether status is within maxFlips bit-flips of want.
//
// Status bytes used as free/in-use/discard markers live in the unprotected
// spare area (§9, Bit-flip tolerance): a single bit error must still decode
// to the value it started as, so equality is replaced by a Hamming-distance
// threshold.
func NearStatus(status, want uint8, maxFlips uint8) bool {
	return FlipDistance(status, want) <= maxFlips
}

func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func RoundUp(n, sz uint64) uint64 {
	return (n + sz - 1) / sz
}
