package hardware

import (
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

// ADS1115 registers and config bits
const (
	adsRegConversion = 0x00
	adsRegConfig     = 0x01

	adsConfigOsSingle    uint16 = 0x8000
	adsConfigModeSingle  uint16 = 0x0100
	adsConfigGainOne     uint16 = 0x0200 // +/- 4.096V
	adsConfigDataRate128 uint16 = 0x0080
	adsConfigQueueNone   uint16 = 0x0003
	adsConfigMuxSingle0  uint16 = 0x4000 // AIN0 vs GND, AIN1..3 follow in steps of 0x1000

	adsConvTimeout  = 50 * time.Millisecond
	adsConvPollWait = 1 * time.Millisecond
)

// ADS1115 reads single-ended conversions from a TI ADS1115 over I2C.
type ADS1115 struct {
	dev conn.Conn
}

// NewADS1115 wraps an I2C device (usually an *i2c.Dev at address 0x48).
func NewADS1115(dev conn.Conn) *ADS1115 {
	return &ADS1115{dev: dev}
}

// Read performs a single-shot conversion of channel AIN0..AIN3 against GND
// and returns the signed 16-bit result.
func (a *ADS1115) Read(channel int) (int16, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("ads1115: channel %d out of range", channel)
	}

	mux := adsConfigMuxSingle0 + uint16(channel)<<12
	config := adsConfigOsSingle |
		mux |
		adsConfigGainOne |
		adsConfigModeSingle |
		adsConfigDataRate128 |
		adsConfigQueueNone

	if err := a.dev.Tx([]byte{adsRegConfig, byte(config >> 8), byte(config)}, nil); err != nil {
		return 0, fmt.Errorf("ads1115: write config: %w", err)
	}

	// OS bit reads back as 1 once the conversion is done
	deadline := time.Now().Add(adsConvTimeout)
	cfg := make([]byte, 2)
	for {
		if err := a.dev.Tx([]byte{adsRegConfig}, cfg); err != nil {
			return 0, fmt.Errorf("ads1115: read config: %w", err)
		}
		if binary.BigEndian.Uint16(cfg)&adsConfigOsSingle != 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("ads1115: conversion timeout on channel %d", channel)
		}
		time.Sleep(adsConvPollWait)
	}

	b := make([]byte, 2)
	if err := a.dev.Tx([]byte{adsRegConversion}, b); err != nil {
		return 0, fmt.Errorf("ads1115: read conversion: %w", err)
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// adsToRaw scales a 16-bit conversion down to the 10-bit range the
// moisture calibration is expressed in.
func adsToRaw(value int16) int {
	raw := int(float64(value) / 6.5536)
	if raw < 0 {
		return 0
	}
	return raw
}
