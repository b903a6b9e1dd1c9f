// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// scd4x-exporter serves readings from an SCD4x CO2 sensor as Prometheus
// metrics.
//
// Example:
//
//	scd4x-exporter -bus /dev/i2c-1 -interval 15s -listen :9363
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/airmetrics/devices/scd4x"
)

var (
	listen   = flag.String("listen", ":9363", "address to serve metrics on")
	busName  = flag.String("bus", "", "i2c bus to use, empty selects the first available bus")
	interval = flag.Duration("interval", 15*time.Second, "time between sensor readings")
	lowPower = flag.Bool("low-power", false, "use low power periodic measurement (30s update rate)")

	co2 = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scd4x_co2_ppm",
		Help: "CO2 concentration in parts per million.",
	})
	temperature = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scd4x_temperature_celsius",
		Help: "Ambient temperature in degrees Celsius.",
	})
	humidity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scd4x_relative_humidity_percent",
		Help: "Relative humidity in percent.",
	})
)

func main() {
	flag.Parse()

	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}
	bus, err := i2creg.Open(*busName)
	if err != nil {
		log.Fatal(err)
	}
	defer bus.Close()

	opts := scd4x.DefaultOpts
	if *lowPower {
		opts.Power = scd4x.PowerLow
	}
	dev, err := scd4x.New(bus, &opts)
	if err != nil {
		log.Fatal(err)
	}

	sn, err := dev.SerialNumber()
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("found %s serial %s", dev, sn)

	ch, err := dev.SenseContinuous(*interval)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = dev.Halt() }()

	go func() {
		for env := range ch {
			co2.Set(float64(env.CO2))
			temperature.Set(env.Temperature.Celsius())
			humidity.Set(float64(env.Humidity) / float64(physic.PercentRH))
		}
	}()

	http.Handle("/metrics", promhttp.Handler())
	log.Printf("serving metrics on %s", *listen)
	log.Fatal(http.ListenAndServe(*listen, nil))
}
