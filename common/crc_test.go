// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "testing"

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte{0xbe, 0xef}, result: 0x92},
		{bytes: []byte{0x01, 0xa4}, result: 0x4d},
		{bytes: []byte{0xab, 0xcd}, result: 0x6f},
		{bytes: []byte{0x00, 0x00}, result: 0x81},
		{bytes: []byte{0x01, 0x02}, result: 0x17},
		// Zero rounds leaves the initial value untouched.
		{bytes: []byte{}, result: 0xff},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=0x%x received 0x%x", test.bytes, test.result, res)
		}
	}
}

func TestCRC8Deterministic(t *testing.T) {
	bytes := []byte{0x73, 0xb1}
	first := CRC8(bytes)
	for i := 0; i < 100; i++ {
		if res := CRC8(bytes); res != first {
			t.Fatalf("CRC8(%#v) not deterministic: 0x%x then 0x%x", bytes, first, res)
		}
	}
}
