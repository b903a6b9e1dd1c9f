// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendWord(t *testing.T) {
	var tests = []struct {
		words  []uint16
		result []byte
	}{
		{words: []uint16{0x01a4}, result: []byte{0x01, 0xa4, 0x4d}},
		{words: []uint16{0xbeef, 0x0000}, result: []byte{0xbe, 0xef, 0x92, 0x00, 0x00, 0x81}},
	}
	for _, test := range tests {
		var buf []byte
		for _, w := range test.words {
			buf = AppendWord(buf, w)
		}
		if !bytes.Equal(buf, test.result) {
			t.Errorf("AppendWord(%#v)=%#v expected %#v", test.words, buf, test.result)
		}
	}
}

// Every appended word must be followed immediately by the CRC of its own two
// bytes, never by a CRC batched over the whole payload.
func TestAppendWordPerWordCRC(t *testing.T) {
	buf := AppendWord(nil, 0x1234)
	buf = AppendWord(buf, 0x5678)
	if len(buf) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(buf))
	}
	if buf[2] != CRC8(buf[0:2]) {
		t.Errorf("byte 2 is not the CRC of bytes 0..1")
	}
	if buf[5] != CRC8(buf[3:5]) {
		t.Errorf("byte 5 is not the CRC of bytes 3..4")
	}
}

// A serial number frame recorded from a live SCD41.
var serialFrame = []byte{0x73, 0xb1, 0x19, 0xeb, 0x07, 0x7a, 0x3b, 0x0c, 0x54}

func TestDecodeWords(t *testing.T) {
	words, err := DecodeWords(serialFrame, 9, true)
	if err != nil {
		t.Fatal(err)
	}
	expected := []uint16{0x73b1, 0xeb07, 0x3b0c}
	for ix := range expected {
		if words[ix] != expected[ix] {
			t.Errorf("word %d: got 0x%04x expected 0x%04x", ix, words[ix], expected[ix])
		}
	}
}

func TestDecodeWordsChecksumError(t *testing.T) {
	// Corrupt only the CRC byte of the middle word. The failure must name
	// that word and no others.
	frame := bytes.Clone(serialFrame)
	frame[5] ^= 0xff
	_, err := DecodeWords(frame, 9, true)
	var cerr *ChecksumError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ChecksumError, got %v", err)
	}
	if len(cerr.Received) != 3 || len(cerr.Calculated) != 3 {
		t.Fatalf("expected 3 element crc lists, got %#v", cerr)
	}
	for ix := range cerr.Received {
		match := cerr.Received[ix] == cerr.Calculated[ix]
		if ix == 1 && match {
			t.Errorf("corrupted word %d not detected", ix)
		}
		if ix != 1 && !match {
			t.Errorf("word %d reported as corrupt: %#v", ix, cerr)
		}
	}
}

func TestDecodeWordsLengthError(t *testing.T) {
	for _, verify := range []bool{true, false} {
		_, err := DecodeWords(serialFrame[:6], 9, verify)
		var lerr *LengthError
		if !errors.As(err, &lerr) {
			t.Fatalf("verify=%t: expected *LengthError, got %v", verify, err)
		}
		if lerr.Want != 9 || lerr.Got != 6 {
			t.Errorf("verify=%t: unexpected lengths %#v", verify, lerr)
		}
	}
}

func TestDecodeWordsNoVerify(t *testing.T) {
	frame := bytes.Clone(serialFrame)
	frame[2] ^= 0xff
	words, err := DecodeWords(frame, 9, false)
	if err != nil {
		t.Fatal(err)
	}
	if words[0] != 0x73b1 {
		t.Errorf("got 0x%04x expected 0x73b1", words[0])
	}
}
