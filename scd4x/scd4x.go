// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/airmetrics/devices/common"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM int

// PowerMode selects the acquisition rate for periodic measurement. In normal
// mode the sensor updates its readings every 5 seconds, in low power mode
// every 30 seconds.
type PowerMode int

const (
	PowerNormal PowerMode = iota
	PowerLow
)

// MeasureMode selects between continuous periodic measurement and the
// SCD41's single shot mode, where each reading is triggered individually.
type MeasureMode int

const (
	MeasureContinuous MeasureMode = iota
	MeasureSingleShot
)

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62

	// Only the low 11 bits of the data ready status word are significant.
	dataReadyMask uint16 = 1<<11 - 1

	// Fixed point scale for the temperature offset. 374.49142857 counts per
	// degree on the way in, 175/65536 degrees per count on the way out. The
	// asymmetry is the sensor's, not ours, and makes the encoding lossy by
	// up to one count.
	countsPerDegree = 374.49142857
	degreesPerCount = 0.0026702880859375
)

type cmd uint16

// Structure to simplify sending commands to the device.
type command struct {
	// The 16-bit command word.
	cmdWord cmd
	// Time the sensor needs to execute the command before it can be read
	// from or sent another command.
	wait time.Duration
	// The expected number of bytes returned. 0, 3, or 9.
	responseSize int
	// True if this command is permitted while the sensor is running in
	// acquisition mode.
	whileSensing bool
}

// The various implemented commands.

var cmdStartMeasurement = command{
	cmdWord: 0x21b1,
}
var cmdStartLowPowerMeasurement = command{
	cmdWord: 0x21ac,
}
var cmdMeasureSingleShot = command{
	cmdWord: 0x219d,
	wait:    5 * time.Second,
}
var cmdStopMeasurement = command{
	cmdWord:      0x3f86,
	wait:         500 * time.Millisecond,
	whileSensing: true,
}
var cmdReadMeasurement = command{
	cmdWord:      0xec05,
	wait:         time.Millisecond,
	responseSize: 9,
	whileSensing: true,
}
var cmdGetDataReadyStatus = command{
	cmdWord:      0xe4b8,
	wait:         time.Millisecond,
	responseSize: 3,
	whileSensing: true,
}
var cmdGetTemperatureOffset = command{
	cmdWord:      0x2318,
	wait:         time.Millisecond,
	responseSize: 3,
}
var cmdSetTemperatureOffset = command{
	cmdWord: 0x241d,
	wait:    time.Millisecond,
}
var cmdGetSensorAltitude = command{
	cmdWord:      0x2322,
	wait:         time.Millisecond,
	responseSize: 3,
}
var cmdSetSensorAltitude = command{
	cmdWord: 0x2427,
	wait:    time.Millisecond,
}
var cmdSetAmbientPressure = command{
	cmdWord:      0xe000,
	wait:         time.Millisecond,
	whileSensing: true,
}
var cmdPersistSettings = command{
	cmdWord: 0x3615,
	wait:    800 * time.Millisecond,
}
var cmdGetSerialNumber = command{
	cmdWord:      0x3682,
	wait:         time.Millisecond,
	responseSize: 9,
}
var cmdPerformSelfTest = command{
	cmdWord:      0x3639,
	wait:         10 * time.Second,
	responseSize: 3,
}
var cmdReinit = command{
	cmdWord: 0x3646,
	wait:    20 * time.Millisecond,
}
var cmdWakeUp = command{
	cmdWord: 0x36f6,
	wait:    20 * time.Millisecond,
}

// startCommand returns the opcode used to begin a measurement. The mode
// flags select the opcode and nothing else; framing is identical for all
// three.
func startCommand(power PowerMode, measure MeasureMode) command {
	if measure == MeasureSingleShot {
		return cmdMeasureSingleShot
	}
	if power == PowerLow {
		return cmdStartLowPowerMeasurement
	}
	return cmdStartMeasurement
}

// Opts holds the construction time configuration of a device. The zero value
// selects the default address, response CRC validation enabled, and normal
// power periodic measurement.
type Opts struct {
	// Bus address of the sensor. 0 selects SensorAddress.
	Addr uint16
	// DisableCRC skips validation of the CRC bytes in sensor responses.
	// Outbound payload words always carry their CRC regardless.
	DisableCRC bool
	// Acquisition rate for periodic measurement.
	Power PowerMode
	// Continuous periodic measurement, or one triggered reading at a time.
	Measure MeasureMode
}

// DefaultOpts is the recommended configuration.
var DefaultOpts = Opts{Addr: SensorAddress}

// SerialNumber is the unique 48-bit factory programmed serial number, as the
// three raw words the sensor responds with.
type SerialNumber [3]uint16

// Uint64 returns the big-endian concatenation of the three words.
func (sn SerialNumber) Uint64() uint64 {
	return uint64(sn[0])<<32 | uint64(sn[1])<<16 | uint64(sn[2])
}

func (sn SerialNumber) String() string {
	return fmt.Sprintf("0x%012x", sn.Uint64())
}

// Dev represents an SCD4x device.
type Dev struct {
	// The i2c bus device.
	d *i2c.Dev
	// False when Opts.DisableCRC was set.
	checkCRC bool
	power    PowerMode
	measure  MeasureMode
	// channel to halt SenseContinuous
	chHalt chan bool
	mu     sync.Mutex
	// True if the device is in continuous sense mode.
	sensing bool
}

func (ppm *PPM) String() string {
	return fmt.Sprintf("%d PPM", *ppm)
}

// The sensor reading. Returns CO2 PPM, Temperature, and Humidity.
type Env struct {
	physic.Env
	CO2 PPM
}

// Return the sensor readings in string format.
func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature.String(), e.Humidity.String(), e.CO2.String())
}

// New creates an SCD4x device on the supplied bus. A nil opts selects
// DefaultOpts. Construction performs no bus traffic; the first command is
// sent by whichever method is called first.
func New(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	addr := opts.Addr
	if addr == 0 {
		addr = SensorAddress
	}
	d := &Dev{
		d:        &i2c.Dev{Bus: b, Addr: addr},
		checkCRC: !opts.DisableCRC,
		power:    opts.Power,
		measure:  opts.Measure,
	}
	return d, nil
}

// NewI2C creates a new SCD4x sensor using the supplied bus and address with
// the default configuration. The constant value SensorAddress should be
// supplied as the value for addr.
func NewI2C(b i2c.Bus, addr uint16) (*Dev, error) {
	return New(b, &Opts{Addr: addr})
}

// All commands to read or write to the sensor go through this function. The
// command word goes out big-endian, followed by each payload word as two
// big-endian bytes plus the CRC of those two bytes. After the command's
// fixed execution time, the fixed size response, if any, is read back and
// validated the same way, one CRC byte per word.
//
// Callers must hold d.mu.
func (d *Dev) sendCommand(cmd command, writeData []uint16) ([]uint16, error) {
	if d.sensing && !cmd.whileSensing {
		// We're in sense mode and this command isn't compatible. Stop sensing.
		if err := d.stopSensing(); err != nil {
			return nil, err
		}
	}

	w := make([]byte, 2, 2+3*len(writeData))
	w[0] = byte(cmd.cmdWord >> 8)
	w[1] = byte(cmd.cmdWord)
	for _, val := range writeData {
		w = common.AppendWord(w, val)
	}
	if err := d.d.Tx(w, nil); err != nil {
		return nil, fmt.Errorf("scd4x cmd 0x%x: %w", cmd.cmdWord, err)
	}
	if cmd.wait > 0 {
		time.Sleep(cmd.wait)
	}
	if cmd.responseSize == 0 {
		return nil, nil
	}

	r := make([]byte, cmd.responseSize)
	if err := d.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("scd4x cmd 0x%x: %w", cmd.cmdWord, err)
	}
	words, err := common.DecodeWords(r, cmd.responseSize, d.checkCRC)
	if err != nil {
		return nil, fmt.Errorf("scd4x cmd 0x%x: %w", cmd.cmdWord, err)
	}
	return words, nil
}

// stopSensing halts periodic measurement. Callers must hold d.mu.
func (d *Dev) stopSensing() error {
	if !d.sensing {
		return nil
	}
	if d.chHalt != nil {
		close(d.chHalt)
	}
	d.sensing = false
	_, err := d.sendCommand(cmdStopMeasurement, nil)
	return err
}

// startSensing begins a measurement according to the configured power and
// measurement modes. Callers must hold d.mu.
func (d *Dev) startSensing() error {
	if d.sensing {
		return nil
	}
	if _, err := d.sendCommand(cmdWakeUp, nil); err != nil {
		// A sensor left in periodic measurement mode NACKs most commands.
		// Stop it so the start command lands on an idle sensor.
		_, _ = d.sendCommand(cmdStopMeasurement, nil)
	}
	_, err := d.sendCommand(startCommand(d.power, d.measure), nil)
	if err == nil && d.measure == MeasureContinuous {
		d.sensing = true
	}
	return err
}

// StartMeasurement puts the sensor into periodic measurement mode, or in
// single shot mode triggers one measurement. Which opcode is sent depends
// only on the Opts mode flags.
func (d *Dev) StartMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startSensing()
}

// StopMeasurement halts periodic measurement. The sensor accepts other
// commands 500ms after the stop is issued; that wait is included here.
func (d *Dev) StopMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sensing {
		_, err := d.sendCommand(cmdStopMeasurement, nil)
		return err
	}
	return d.stopSensing()
}

// DataReady returns true when a completed measurement is waiting to be read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetDataReadyStatus, nil)
	if err != nil {
		return false, err
	}
	return words[0]&dataReadyMask != 0, nil
}

// SerialNumber returns the unique serial number of the device. It can be
// used to verify the presence of the sensor.
func (d *Dev) SerialNumber() (SerialNumber, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetSerialNumber, nil)
	if err != nil {
		return SerialNumber{}, err
	}
	return SerialNumber{words[0], words[1], words[2]}, nil
}

// SelfTest checks sensor functionality and the power supply. It returns
// true when the sensor reports no malfunction. The test takes 10 seconds,
// during which the call blocks.
func (d *Dev) SelfTest() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdPerformSelfTest, nil)
	if err != nil {
		return false, err
	}
	return words[0] == 0, nil
}

// Reinit reloads the user settings stored in EEPROM, discarding anything
// set but not persisted since power-up. The sensor must not be in periodic
// measurement mode. If Reinit does not produce the desired
// re-initialization, power-cycle the sensor.
func (d *Dev) Reinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdReinit, nil)
	return err
}

// Persist writes the current running configuration to the sensor EEPROM for
// use on the next power-up. The EEPROM is rated for roughly 2000 write
// cycles, so call this only when the configuration actually changed.
func (d *Dev) Persist() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdPersistSettings, nil)
	return err
}

// WakeUp brings the sensor out of power-down mode. The sensor does not
// acknowledge this command; a following command confirms it is awake.
func (d *Dev) WakeUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdWakeUp, nil)
	return err
}

// SoftReset is a no-op and never touches the bus. The sensor's factory
// reset opcode rewrites the EEPROM, which survives a limited number of
// write cycles, so this driver does not expose it. Use Reinit to reload the
// persisted settings instead.
func (d *Dev) SoftReset() error {
	return nil
}

// SetTemperatureOffset sets the offset subtracted from the raw temperature
// reading to compensate for self-heating of nearby components. The offset
// has no influence on CO2 accuracy. It defaults to 4°C and is stored with a
// resolution of 175/65536 degrees.
func (d *Dev) SetTemperatureOffset(offset physic.Temperature) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdSetTemperatureOffset, []uint16{offsetToCount(offset)})
	return err
}

// TemperatureOffset returns the current temperature offset.
func (d *Dev) TemperatureOffset() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetTemperatureOffset, nil)
	if err != nil {
		return 0, err
	}
	return countToOffset(words[0]), nil
}

// SetSensorAltitude sets the installation altitude above sea level, used by
// the sensor for pressure compensation. Typically set once after
// installation; use Persist to retain it across power cycles.
func (d *Dev) SetSensorAltitude(altitude physic.Distance) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdSetSensorAltitude, []uint16{uint16(altitude / physic.Metre)})
	return err
}

// SensorAltitude returns the configured installation altitude.
func (d *Dev) SensorAltitude() (physic.Distance, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetSensorAltitude, nil)
	if err != nil {
		return 0, err
	}
	return physic.Distance(words[0]) * physic.Metre, nil
}

// SetAmbientPressure enables continuous pressure compensation, overriding
// any compensation derived from the configured altitude. May be called
// during periodic measurement. The value is stored in hectopascal, so
// anything below 100 Pa is truncated away.
func (d *Dev) SetAmbientPressure(pressure physic.Pressure) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdSetAmbientPressure, []uint16{uint16(pressure / (100 * physic.Pascal))})
	return err
}

// Halt stops continuous sensing if enabled, and if a SenseContinuous
// operation is in progress, it too is halted. Implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopSensing()
}

func offsetToCount(offset physic.Temperature) uint16 {
	return uint16(math.Round(float64(offset) / float64(physic.Celsius) * countsPerDegree))
}

func countToOffset(count uint16) physic.Temperature {
	return physic.Temperature(degreesPerCount * float64(count) * float64(physic.Celsius))
}

// countToTemp converts a device count to Temperature.
func countToTemp(count uint16) physic.Temperature {
	frac := float64(count) / 65535.0
	result := -45 + 175*frac
	return physic.ZeroCelsius + physic.Temperature(float64(physic.Celsius)*result)
}

func countToHumidity(count uint16) physic.RelativeHumidity {
	frac := float64(count) / 65535.0
	return physic.RelativeHumidity(frac * 100.0 * float64(physic.PercentRH))
}

// Sense returns readings (Temperature, Humidity, and CO2 concentration in
// PPM) from the device. In continuous mode the sensor only produces a
// reading every 5 seconds (30 in low power mode); calling more frequently
// blocks until data is ready. In single shot mode every call triggers a
// measurement, which takes 5 seconds.
func (d *Dev) Sense(env *Env) error {
	env.Temperature = 0
	env.Humidity = 0
	env.CO2 = 0
	env.Pressure = 0

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sensing {
		if err := d.startSensing(); err != nil {
			return err
		}
		if d.measure == MeasureContinuous {
			// First reading of a fresh acquisition run.
			time.Sleep(5 * time.Second)
		}
	}

	ready := false
	tCutoff := time.Now().Add(6 * time.Second)
	for !ready && time.Now().Before(tCutoff) {
		words, err := d.sendCommand(cmdGetDataReadyStatus, nil)
		ready = err == nil && words[0]&dataReadyMask != 0
		if !ready {
			time.Sleep(time.Second)
		}
	}
	if !ready {
		return errors.New("scd4x: timeout waiting for data ready status")
	}
	words, err := d.sendCommand(cmdReadMeasurement, nil)
	if err != nil {
		return err
	}
	env.CO2 = PPM(words[0])
	env.Temperature = countToTemp(words[1])
	env.Humidity = countToHumidity(words[2])
	return nil
}

// SenseContinuous continuously reads the sensor on the specified duration,
// and writes readings to the returned channel. The sense time for the scd4x
// device is 5 seconds in normal acquisition mode. If you specify a shorter
// period than that, the routine will spin until the device indicates a
// reading is ready. To terminate a continuous sense, call Halt().
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	if d.chHalt != nil {
		d.mu.Unlock()
		return nil, errors.New("scd4x: SenseContinuous() running already")
	}
	if !d.sensing && d.measure == MeasureContinuous {
		if err := d.startSensing(); err != nil {
			d.mu.Unlock()
			return nil, err
		}
	}
	d.chHalt = make(chan bool)
	d.mu.Unlock()

	channelSize := 16
	channel := make(chan Env, channelSize)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(channel)
		defer func() { d.chHalt = nil }()

		for {
			select {
			case <-d.chHalt:
				return
			case <-ticker.C:
				// do the reading and write to the channel.
				e := Env{}
				err := d.Sense(&e)
				if err == nil && len(channel) < channelSize {
					channel <- e
				}
			}
		}
	}()
	return channel, nil
}

// Precision returns the sensor's resolution, or minimum value between steps
// the device can make. The specified precision is 1 PPM for CO2, 1/65535
// for temperature and humidity.
func (d *Dev) Precision(env *Env) {
	countIncrement := float64(1.0) / float64((1<<16)-1)
	env.Temperature = physic.Temperature(countIncrement * float64(physic.Celsius))
	env.Pressure = 0
	env.Humidity = physic.RelativeHumidity(float64(physic.PercentRH) * countIncrement)
	env.CO2 = 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: %s", d.d.String())
}
