// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the Sensirion SCD4x CO2 sensors.
// The scd4x family provide a compact sensor that can be used to measure
// Temperature, Humidity, and CO2 concentration over a two-wire bus.
//
// The sensor has no registers. It accepts 16-bit command words, optionally
// followed by payload words, and answers after a command specific execution
// time with response words. Every word on the wire, in either direction,
// travels with its own CRC byte. This driver implements that framing and the
// full command catalog: serial number, self test, temperature offset,
// altitude and pressure compensation, periodic and single shot measurement.
//
// Refer to the datasheet for more information.
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
package scd4x
