// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ist8308 drives an iSentek IST8308 three-axis magnetometer
// over I2C. The driver is a small state machine invoked by a
// scheduler: it resets the sensor, applies and verifies a declarative
// register configuration, samples at a fixed rate, and re-verifies one
// configuration register per health-check period so configuration
// drift from bus glitches or spontaneous resets is detected and
// repaired without external intervention.
package ist8308

// Register is one addressable byte location on the sensor.
type Register byte

// IST8308 register map (datasheet v1.x).
const (
	RegWAI Register = 0x00 // Who Am I

	RegSTAT   Register = 0x10 // Status 1
	RegDATAXL Register = 0x11
	RegDATAXH Register = 0x12
	RegDATAYL Register = 0x13
	RegDATAYH Register = 0x14
	RegDATAZL Register = 0x15
	RegDATAZH Register = 0x16

	RegCNTL1 Register = 0x30 // Control 1: noise suppression filter
	RegCNTL2 Register = 0x31 // Control 2: operating mode / ODR
	RegCNTL3 Register = 0x32 // Control 3: software reset
	RegCNTL4 Register = 0x34 // Control 4: dynamic range

	RegOSRCNTL Register = 0x41 // Over-sampling ratio
)

// DefaultAddr is the IST8308 I2C peripheral address.
const DefaultAddr = 0x0C

// DeviceID is the expected WAI value.
const DeviceID = 0x08

// STAT bits.
const (
	STATDataReady   = 1 << 0 // DRDY, cleared by reading the data registers
	STATDataOverrun = 1 << 1 // DOR
)

// CNTL1 bits: noise suppression filter level, bits 6:5.
const (
	CNTL1NSFLow    = 1 << 5
	CNTL1NSFMiddle = 1 << 6
	CNTL1NSFHigh   = CNTL1NSFMiddle | CNTL1NSFLow
)

// CNTL2 bits: operating mode, bits 4:0. Zero is stand-by.
const (
	CNTL2ModeSingle    = 0x01
	CNTL2ModeCont10Hz  = 0x02
	CNTL2ModeCont20Hz  = 0x04
	CNTL2ModeCont50Hz  = 0x06
	CNTL2ModeCont100Hz = 0x08
	CNTL2ModeMask      = 0x1F
)

// CNTL3 bits.
const (
	CNTL3SoftReset = 1 << 0 // SRST, self-clears after the POR routine
)

// CNTL4 bits: dynamic range, bits 1:0. Zero selects ±500 µT.
const (
	CNTL4RangeMask = 0x03
)

// OSRCNTL bits: over-sampling ratio, bits 2:0.
const (
	OSRCNTLRatio16   = 0x04
	OSRCNTLRatioMask = 0x07
)

// ScaleFactor converts raw counts to µT. The ±500 µT range resolves
// 6.6 LSB/µT.
const ScaleFactor = 1.0 / 6.6

// RegisterConfig describes the required state of one register:
// SetBits must all read back set, ClearBits must all read back clear.
// The two masks never overlap.
type RegisterConfig struct {
	Reg       Register
	SetBits   byte
	ClearBits byte
}

// registerConfig is the complete operating configuration, applied
// during the configure phase and re-verified one entry at a time by
// the periodic health check. Order matters only for the health-check
// round robin.
var registerConfig = []RegisterConfig{
	{RegCNTL1, CNTL1NSFLow, CNTL1NSFHigh &^ CNTL1NSFLow},
	{RegCNTL2, CNTL2ModeCont50Hz, CNTL2ModeMask &^ CNTL2ModeCont50Hz},
	{RegCNTL3, 0, CNTL3SoftReset},
	{RegCNTL4, 0, CNTL4RangeMask},
	{RegOSRCNTL, OSRCNTLRatio16, OSRCNTLRatioMask &^ OSRCNTLRatio16},
}

// RegisterInfo is register metadata for the register-debug tool.
type RegisterInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Access      string `json:"access"`
}

// GetRegisterMap returns metadata for the registers the driver knows
// about, in address order.
func GetRegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x00", Name: "WAI", Description: "Who Am I (expect 0x08)", Access: "R"},
		{Address: "0x10", Name: "STAT", Description: "Status: bit0 DRDY, bit1 DOR", Access: "R"},
		{Address: "0x11", Name: "DATAXL", Description: "X-axis low byte", Access: "R"},
		{Address: "0x12", Name: "DATAXH", Description: "X-axis high byte", Access: "R"},
		{Address: "0x13", Name: "DATAYL", Description: "Y-axis low byte", Access: "R"},
		{Address: "0x14", Name: "DATAYH", Description: "Y-axis high byte", Access: "R"},
		{Address: "0x15", Name: "DATAZL", Description: "Z-axis low byte", Access: "R"},
		{Address: "0x16", Name: "DATAZH", Description: "Z-axis high byte", Access: "R"},
		{Address: "0x30", Name: "CNTL1", Description: "Noise suppression filter (bits 6:5)", Access: "RW"},
		{Address: "0x31", Name: "CNTL2", Description: "Operating mode / ODR (bits 4:0)", Access: "RW"},
		{Address: "0x32", Name: "CNTL3", Description: "Software reset (bit0, self-clearing)", Access: "RW"},
		{Address: "0x34", Name: "CNTL4", Description: "Dynamic range (bits 1:0, 0=±500µT)", Access: "RW"},
		{Address: "0x41", Name: "OSRCNTL", Description: "Over-sampling ratio (bits 2:0)", Access: "RW"},
	}
}
