// Copyright (c) 2023 BVK Chaitanya

// Package idgen derives deterministic client order references. Same seed and
// offset always produce the same id, so an order placement retried after a
// crash reuses the original reference.
package idgen

import (
	"crypto/md5"
	"encoding/binary"
	"iter"
	"strings"

	"github.com/google/uuid"
)

// At returns the uuid at the offset in the seed's sequence.
func At(seed string, offset uint64) uuid.UUID {
	base := md5.Sum([]byte(seed))

	var buf [16 + 8]byte
	copy(buf[:16], base[:])
	binary.BigEndian.PutUint64(buf[16:], offset)
	return uuid.UUID(md5.Sum(buf[:]))
}

// ClientRef returns the uuid at the offset formatted as an exchange client
// order id, which cannot have dashes.
func ClientRef(seed string, offset uint64) string {
	return strings.ReplaceAll(At(seed, offset).String(), "-", "")
}

// Refs yields client order references of the seed starting from an offset.
func Refs(seed string, from uint64) iter.Seq2[uint64, string] {
	return func(yield func(uint64, string) bool) {
		for off := from; ; off++ {
			if !yield(off, ClientRef(seed, off)) {
				return
			}
		}
	}
}
