// go-otaboot
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-otaboot.
//
// go-otaboot is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-otaboot is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-otaboot; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package nrf24 drives an nRF24L01+ transceiver over SPI with periph.io so
// the bridge and the remote can run on real hardware. Dynamic payloads and
// ack payloads are always enabled.
package nrf24

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/go-otaboot/radio"
	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Registers
const (
	regConfig    = 0x00
	regEnAA      = 0x01
	regEnRxAddr  = 0x02
	regSetupAW   = 0x03
	regSetupRetr = 0x04
	regRFCh      = 0x05
	regRFSetup   = 0x06
	regStatus    = 0x07
	regRxAddrP0  = 0x0A
	regTxAddr    = 0x10
	regFIFO      = 0x17
	regDynPD     = 0x1C
	regFeature   = 0x1D
)

// Commands
const (
	cmdWRegister   = 0x20
	cmdRxPlWid     = 0x60
	cmdRxPayload   = 0x61
	cmdTxPayload   = 0xA0
	cmdAckPayload  = 0xA8
	cmdFlushTX     = 0xE1
	cmdFlushRX     = 0xE2
	cmdNop         = 0xFF
	rxPipeEmpty    = 0x07
	rxPipeShift    = 1
	rxPipeMask     = 0x07
	addressWidth   = 5
	maxChannel     = 125
	defaultChannel = 76
)

// Bits
const (
	bitPrimRX   = 1 << 0
	bitPwrUp    = 1 << 1
	bitCRCO     = 1 << 2
	bitEnCRC    = 1 << 3
	bitMaxRT    = 1 << 4
	bitTxDS     = 1 << 5
	bitRxDR     = 1 << 6
	bitEnDynAck = 1 << 0
	bitEnAckPay = 1 << 1
	bitEnDPL    = 1 << 2
	rfDRLow     = 1 << 5
	rfPwrMax    = 3 << 1
	bitTxEmpty  = 1 << 4
)

// ErrTimeout is returned when the radio never reports the outcome of a send.
var ErrTimeout = errors.New("nrf24: timeout waiting for transmit status")

// Address is a five byte pipe address.
type Address [addressWidth]byte

// DefaultAddress is the pipe address both ends use unless configured.
var DefaultAddress = Address{0xE7, 0xE7, 0xE7, 0xE7, 0xE7}

// Config selects the hardware and the RF parameters.
type Config struct {
	// SPIPort is the periph SPI port name, for example "/dev/spidev0.0".
	SPIPort string
	// CEPin is the periph GPIO name wired to CE, for example "GPIO25".
	CEPin   string
	SPIHz   int64
	Channel uint8
	Address Address
	// RetryDelay is the hardware auto-retransmit delay in 250µs steps.
	RetryDelay uint8
	// RetryCount is the number of hardware retransmissions, at most 15.
	RetryCount uint8
}

func (c *Config) applyDefaults() {
	if c.SPIPort == "" {
		c.SPIPort = "/dev/spidev0.0"
	}
	if c.CEPin == "" {
		c.CEPin = "GPIO25"
	}
	if c.SPIHz == 0 {
		c.SPIHz = 4_000_000
	}
	if c.Channel == 0 {
		c.Channel = defaultChannel
	}
	if c.Address == (Address{}) {
		c.Address = DefaultAddress
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 5
	}
	if c.RetryCount == 0 {
		c.RetryCount = 15
	}
}

// pin is the slice of gpio.PinOut the driver uses.
type pin interface {
	Out(l gpio.Level) error
}

// Radio is an nRF24L01+ implementing radio.Radio.
type Radio struct {
	conn    spi.Conn
	ce      pin
	port    spi.PortCloser
	sleep   func(time.Duration)
	cfg     Config
	mode    radio.Mode
	ack     []byte
	closed  bool
	mu      sync.Mutex
	timeout time.Duration
}

var _ radio.Radio = (*Radio)(nil)

// Open initializes periph, opens the SPI port and the CE pin, and configures
// the radio as a receiver.
func Open(cfg Config) (*Radio, error) {
	cfg.applyDefaults()
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	p, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", cfg.SPIPort, err)
	}
	conn, err := p.Connect(physic.Frequency(cfg.SPIHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to connect SPI port %s: %w", cfg.SPIPort, err)
	}
	ce := gpioreg.ByName(cfg.CEPin)
	if ce == nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to open CE pin %s", cfg.CEPin)
	}
	r, err := newDriver(cfg, conn, ce, time.Sleep)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	r.port = p
	return r, nil
}

func newDriver(cfg Config, conn spi.Conn, ce pin, sleep func(time.Duration)) (*Radio, error) {
	cfg.applyDefaults()
	if cfg.Channel >= maxChannel {
		return nil, fmt.Errorf("channel %d out of range", cfg.Channel)
	}
	if cfg.RetryCount > 15 || cfg.RetryDelay > 16 {
		return nil, fmt.Errorf("retry setup %d/%d out of range", cfg.RetryDelay, cfg.RetryCount)
	}
	r := &Radio{
		conn:  conn,
		ce:    ce,
		sleep: sleep,
		cfg:   cfg,
		mode:  radio.ModeRX,
		// hardware gives up after RetryCount retransmissions, plus slack for SPI
		timeout: time.Duration(cfg.RetryDelay)*250*time.Microsecond*time.Duration(cfg.RetryCount+1) +
			20*time.Millisecond,
	}
	if err := r.init(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Radio) init() error {
	if err := r.setCE(false); err != nil {
		return err
	}
	steps := [][]byte{
		{cmdWRegister | regConfig, 0},
		{cmdWRegister | regStatus, bitRxDR | bitTxDS | bitMaxRT},
		{cmdFlushTX},
		{cmdFlushRX},
		{cmdWRegister | regRFCh, r.cfg.Channel},
		{cmdWRegister | regSetupAW, addressWidth - 2},
		{cmdWRegister | regSetupRetr, (r.cfg.RetryDelay-1)<<4 | r.cfg.RetryCount},
		{cmdWRegister | regRFSetup, rfDRLow | rfPwrMax},
		{cmdWRegister | regEnAA, 0x01},
		{cmdWRegister | regEnRxAddr, 0x01},
		{cmdWRegister | regFeature, bitEnDPL | bitEnAckPay | bitEnDynAck},
		{cmdWRegister | regDynPD, 0x01},
		append([]byte{cmdWRegister | regRxAddrP0}, r.cfg.Address[:]...),
		append([]byte{cmdWRegister | regTxAddr}, r.cfg.Address[:]...),
		{cmdWRegister | regConfig, bitPwrUp | bitEnCRC | bitCRCO | bitPrimRX},
	}
	for _, s := range steps {
		if _, err := r.tx(s); err != nil {
			return fmt.Errorf("failed to configure radio: %w", err)
		}
	}
	r.sleep(5 * time.Millisecond)
	glog.V(1).Infof("nrf24: channel %d address % X", r.cfg.Channel, r.cfg.Address[:])
	return r.setCE(true)
}

func (r *Radio) tx(w []byte) ([]byte, error) {
	rd := make([]byte, len(w))
	if err := r.conn.Tx(w, rd); err != nil {
		return nil, fmt.Errorf("spi transfer: %w", err)
	}
	return rd, nil
}

func (r *Radio) write(reg, val byte) error {
	_, err := r.tx([]byte{cmdWRegister | reg, val})
	return err
}

func (r *Radio) read(reg byte) (byte, error) {
	rd, err := r.tx([]byte{reg, cmdNop})
	if err != nil {
		return 0, err
	}
	return rd[1], nil
}

func (r *Radio) status() (byte, error) {
	rd, err := r.tx([]byte{cmdNop})
	if err != nil {
		return 0, err
	}
	return rd[0], nil
}

func (r *Radio) setCE(high bool) error {
	if high {
		return r.ce.Out(gpio.High)
	}
	return r.ce.Out(gpio.Low)
}

func (r *Radio) setPrimRX(on bool) error {
	cfg, err := r.read(regConfig)
	if err != nil {
		return err
	}
	if on {
		cfg |= bitPrimRX
	} else {
		cfg &^= bitPrimRX
	}
	return r.write(regConfig, cfg)
}

// readPayload pops one frame from the receive FIFO.
func (r *Radio) readPayload(buf []byte) (int, error) {
	st, err := r.status()
	if err != nil {
		return 0, err
	}
	if (st>>rxPipeShift)&rxPipeMask == rxPipeEmpty {
		return 0, nil
	}
	wid, err := r.read(cmdRxPlWid)
	if err != nil {
		return 0, err
	}
	if wid == 0 || wid > radio.MaxPayload {
		glog.V(2).Infof("nrf24: bad payload width %d, flushing", wid)
		_, err = r.tx([]byte{cmdFlushRX})
		return 0, err
	}
	w := make([]byte, int(wid)+1)
	w[0] = cmdRxPayload
	for i := 1; i < len(w); i++ {
		w[i] = cmdNop
	}
	rd, err := r.tx(w)
	if err != nil {
		return 0, err
	}
	if err := r.write(regStatus, bitRxDR); err != nil {
		return 0, err
	}
	return copy(buf, rd[1:]), nil
}

// Transmit sends p as primary transmitter and returns the ack payload, then
// restores the current role.
func (r *Radio) Transmit(p []byte) ([]byte, error) {
	if len(p) > radio.MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", radio.ErrPayloadTooLarge, len(p))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, radio.ErrClosed
	}

	if err := r.setCE(false); err != nil {
		return nil, err
	}
	if err := r.setPrimRX(false); err != nil {
		return nil, err
	}
	defer r.restoreRole()

	// a queued ack payload shares the TX FIFO and would go out first
	pending, err := r.pendingAck()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if _, err := r.tx([]byte{cmdFlushTX}); err != nil {
			return nil, err
		}
		defer r.requeueAck(pending)
	}

	if _, err := r.tx(append([]byte{cmdTxPayload}, p...)); err != nil {
		return nil, err
	}
	if err := r.setCE(true); err != nil {
		return nil, err
	}
	r.sleep(15 * time.Microsecond)
	if err := r.setCE(false); err != nil {
		return nil, err
	}

	var waited time.Duration
	for {
		st, err := r.status()
		if err != nil {
			return nil, err
		}
		switch {
		case st&bitMaxRT != 0:
			_ = r.write(regStatus, bitMaxRT)
			_, _ = r.tx([]byte{cmdFlushTX})
			return nil, radio.ErrNoAck
		case st&bitTxDS != 0:
			_ = r.write(regStatus, bitTxDS)
			if st&bitRxDR == 0 {
				return []byte{}, nil
			}
			var buf [radio.MaxPayload]byte
			n, err := r.readPayload(buf[:])
			if err != nil {
				return nil, err
			}
			return buf[:n], nil
		}
		if waited >= r.timeout {
			_, _ = r.tx([]byte{cmdFlushTX})
			return nil, ErrTimeout
		}
		r.sleep(time.Millisecond)
		waited += time.Millisecond
	}
}

// pendingAck returns the ack payload still waiting in the TX FIFO. Once a
// received frame has taken it the FIFO is empty and nothing is pending.
func (r *Radio) pendingAck() ([]byte, error) {
	if r.ack == nil {
		return nil, nil
	}
	fifo, err := r.read(regFIFO)
	if err != nil {
		return nil, err
	}
	if fifo&bitTxEmpty != 0 {
		r.ack = nil
		return nil, nil
	}
	return r.ack, nil
}

func (r *Radio) requeueAck(p []byte) {
	if _, err := r.tx(append([]byte{cmdAckPayload}, p...)); err != nil {
		glog.Warningf("nrf24: failed to requeue ack payload: %v", err)
	}
}

func (r *Radio) restoreRole() {
	if r.mode != radio.ModeRX {
		return
	}
	if err := r.setPrimRX(true); err != nil {
		glog.Warningf("nrf24: failed to restore receiver role: %v", err)
		return
	}
	_ = r.setCE(true)
}

// Receive copies one pending frame into buf.
func (r *Radio) Receive(buf []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, radio.ErrClosed
	}
	return r.readPayload(buf)
}

// SetAckPayload replaces the queued ack payload. The TX FIFO is flushed first
// so only the newest reply is ever sent. The payload survives Transmit until
// a received frame takes it.
func (r *Radio) SetAckPayload(p []byte) error {
	if len(p) > radio.MaxPayload {
		return fmt.Errorf("%w: %d bytes", radio.ErrPayloadTooLarge, len(p))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return radio.ErrClosed
	}
	if _, err := r.tx([]byte{cmdFlushTX}); err != nil {
		return err
	}
	if _, err := r.tx(append([]byte{cmdAckPayload}, p...)); err != nil {
		return err
	}
	r.ack = append(r.ack[:0], p...)
	return nil
}

// SetMode switches between listening and relaying.
func (r *Radio) SetMode(m radio.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return radio.ErrClosed
	}
	if m == r.mode {
		return nil
	}
	if err := r.setCE(false); err != nil {
		return err
	}
	if err := r.setPrimRX(m == radio.ModeRX); err != nil {
		return err
	}
	if m == radio.ModeRX {
		if err := r.setCE(true); err != nil {
			return err
		}
		r.sleep(130 * time.Microsecond)
	}
	r.mode = m
	glog.V(1).Infof("nrf24: mode %s", m)
	return nil
}

// Mode returns the current role.
func (r *Radio) Mode() radio.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// Close powers the radio down and releases the SPI port.
func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	_ = r.setCE(false)
	_ = r.write(regConfig, 0)
	if r.port != nil {
		return r.port.Close()
	}
	return nil
}
