// Package wal holds what the journal and the outbox share.
package wal

import (
	"errors"
	"hash/crc32"
)

// ErrCorrupt marks a frame whose checksum does not match.
var ErrCorrupt = errors.New("wal: checksum mismatch")

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32 checksums the concatenation of parts.
func CRC32(parts ...[]byte) uint32 {
	var sum uint32
	for _, p := range parts {
		sum = crc32.Update(sum, castagnoli, p)
	}
	return sum
}

func CRC32Valid(sum uint32, parts ...[]byte) bool {
	return CRC32(parts...) == sum
}
