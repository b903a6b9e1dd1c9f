// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functionality shared by the sensor drivers: the
// CRC8 variant used by sensors from TI and Sensirion, and helpers for the
// Sensirion wire format of big-endian 16-bit words each followed by its own
// CRC byte.
package common

import "github.com/sigurn/crc8"

// The Sensirion parameter set: polynomial 0x31, initial value 0xff, no
// reflection, no final xor. Not the CRC-8/CCITT defaults.
var sensirionTable = crc8.MakeTable(crc8.Params{
	Poly: 0x31,
	Init: 0xff,
	Name: "CRC-8/Sensirion",
})

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. The empty slice yields the initial value 0xff.
func CRC8(bytes []byte) byte {
	return crc8.Checksum(bytes, sensirionTable)
}
