// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ist8308

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
)

// Transport is the register-level bus access the driver needs. All
// calls are synchronous; a returned error means the transfer failed
// and any read data is undefined. The driver assumes it is the only
// user of the peripheral address, so ReadModifyWrite needs no
// transaction-level locking.
type Transport interface {
	// ReadRegister reads one register byte.
	ReadRegister(reg Register) (byte, error)
	// WriteRegister writes one register byte.
	WriteRegister(reg Register, value byte) error
	// BulkRead reads len(buf) sequential registers starting at start
	// in a single bus transaction, so the bytes are mutually
	// consistent.
	BulkRead(start Register, buf []byte) error
}

// i2cTransport implements Transport on a periph.io I2C device.
type i2cTransport struct {
	dev i2c.Dev
}

// NewI2CTransport wraps an open I2C bus and peripheral address.
func NewI2CTransport(bus i2c.Bus, addr uint16) Transport {
	if addr == 0 {
		addr = DefaultAddr
	}
	return &i2cTransport{dev: i2c.Dev{Addr: addr, Bus: bus}}
}

func (t *i2cTransport) ReadRegister(reg Register) (byte, error) {
	var buf [1]byte
	if err := t.dev.Tx([]byte{byte(reg)}, buf[:]); err != nil {
		return 0, fmt.Errorf("read 0x%02X: %w", byte(reg), err)
	}
	return buf[0], nil
}

func (t *i2cTransport) WriteRegister(reg Register, value byte) error {
	if err := t.dev.Tx([]byte{byte(reg), value}, nil); err != nil {
		return fmt.Errorf("write 0x%02X: %w", byte(reg), err)
	}
	return nil
}

func (t *i2cTransport) BulkRead(start Register, buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("bulk read 0x%02X: empty buffer", byte(start))
	}
	if err := t.dev.Tx([]byte{byte(start)}, buf); err != nil {
		return fmt.Errorf("bulk read 0x%02X: %w", byte(start), err)
	}
	return nil
}
