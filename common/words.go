// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "fmt"

// On the wire every 16-bit word is immediately followed by its own CRC byte.
// A message carrying N words is 3*N bytes. There is never a single CRC for a
// multi-word message.
const wordBlockSize = 3

// AppendWord appends w as two big-endian bytes followed by the CRC8 of those
// two bytes, and returns the extended slice.
func AppendWord(dst []byte, w uint16) []byte {
	dst = append(dst, byte(w>>8), byte(w))
	return append(dst, CRC8(dst[len(dst)-2:]))
}

// LengthError reports a response shorter (or longer) than the fixed length an
// operation requires. It is never retried here; the caller owns retry policy.
type LengthError struct {
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("received %d bytes, expected %d", e.Got, e.Want)
}

// ChecksumError reports one or more words whose received CRC byte does not
// match the CRC recomputed over the word. Both full lists are retained for
// diagnostics.
type ChecksumError struct {
	Received   []byte
	Calculated []byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("invalid crc: received %#v, calculated %#v", e.Received, e.Calculated)
}

// DecodeWords parses buf as a sequence of (word, CRC) blocks and returns the
// decoded words. buf must be exactly want bytes long or a *LengthError is
// returned. When verify is true, each block's CRC byte is checked against the
// CRC recomputed over its two data bytes, and a *ChecksumError covering the
// whole buffer is returned if any block disagrees.
func DecodeWords(buf []byte, want int, verify bool) ([]uint16, error) {
	if len(buf) != want {
		return nil, &LengthError{Want: want, Got: len(buf)}
	}
	words := make([]uint16, len(buf)/wordBlockSize)
	if verify {
		received := make([]byte, len(words))
		calculated := make([]byte, len(words))
		mismatch := false
		for ix := range words {
			received[ix] = buf[ix*wordBlockSize+2]
			calculated[ix] = CRC8(buf[ix*wordBlockSize : ix*wordBlockSize+2])
			mismatch = mismatch || received[ix] != calculated[ix]
		}
		if mismatch {
			return nil, &ChecksumError{Received: received, Calculated: calculated}
		}
	}
	for ix := range words {
		words[ix] = uint16(buf[ix*wordBlockSize])<<8 | uint16(buf[ix*wordBlockSize+1])
	}
	return words, nil
}
