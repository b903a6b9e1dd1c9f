//go:build examples
// +build examples

// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x_test

import (
	"fmt"
	"log"

	"github.com/airmetrics/devices/scd4x"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// basic example program for scd4x sensors using this library.
//
// To execute this as a stand-alone program:
//
// Copy the file example_test.go to a new directory.
// rename the file to main.go
// rename the Example() function to main, and the package to main
//
// execute:
//
//	go mod init mydomain.com/scd4x
//	go mod tidy
//	go build -o main main.go
//	./main
func Example() {
	fmt.Println("scd4x example program")
	if _, err := host.Init(); err != nil {
		fmt.Println(err)
	}
	bus, err := i2creg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	dev, err := scd4x.NewI2C(bus, scd4x.SensorAddress)
	if err != nil {
		log.Fatal(err)
	}

	sn, err := dev.SerialNumber()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Sensor serial number: %s\n", sn)

	if err := dev.SetTemperatureOffset(1300 * physic.MilliKelvin); err != nil {
		log.Fatal(err)
	}
	offset, err := dev.TemperatureOffset()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Temperature offset: %s\n", offset)

	env := scd4x.Env{}
	if err := dev.Sense(&env); err != nil {
		log.Fatal(err)
	}
	fmt.Println(env.String())
	// Output: Temperature: 24.845°C Humidity: 32.3%rH CO2: 581 PPM
}
