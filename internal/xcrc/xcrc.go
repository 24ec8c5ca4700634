// Copyright 2020 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xcrc computes the CRC-32 (IEEE 802.3) checksums appended to
// every keep-alive message.
//
// A message is usually checksummed in two steps (header first, then body),
// so Update takes the checksum of the previous step as a seed.
package xcrc // import "github.com/go-lpc/keepalive/internal/xcrc"

import (
	"hash"
	"hash/crc32"
)

// Size is the size of a CRC-32 checksum in bytes.
const Size = crc32.Size

// Update returns the result of adding the bytes in p to the crc.
// The first call must be seeded with 0.
func Update(crc uint32, p []byte) uint32 {
	return crc32.Update(crc, crc32.IEEETable, p)
}

// Checksum returns the CRC-32 checksum of p.
func Checksum(p []byte) uint32 {
	return Update(0, p)
}

// Hash32 is a streaming CRC-32 hash, seeded with 0.
type Hash32 = hash.Hash32

// New returns a new streaming CRC-32 hash.
func New() Hash32 {
	return crc32.NewIEEE()
}
