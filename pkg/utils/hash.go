package utils

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
)

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// SeedFromString derives a stable int64 seed from a key, so sampling tied to
// an artifact key is reproducible across processes.
func SeedFromString(input string) int64 {
	hash := md5.Sum([]byte(input))
	return int64(binary.BigEndian.Uint64(hash[:8]) & (1<<63 - 1))
}
