// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/ist8308"
	"github.com/relabs-tech/mag_computer/internal/mag"
	"github.com/relabs-tech/mag_computer/internal/orientation"
)

// RunMagProbe performs a one-shot identity check of the sensor and
// prints the result. Used at bring-up to confirm wiring and address.
func RunMagProbe() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("probe: config init failed: %w", err)
	}
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("probe: periph host init failed: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return fmt.Errorf("probe: i2c open failed on bus %s: %w", cfg.MagI2CBus, err)
	}
	defer bus.Close()

	transport := ist8308.NewI2CTransport(bus, cfg.MagI2CAddr)
	driver := ist8308.New(transport, mag.NewCollector(orientation.RotationNone, nil), ist8308.Opts{})

	if err := driver.Probe(); err != nil {
		return err
	}

	addr := cfg.MagI2CAddr
	if addr == 0 {
		addr = ist8308.DefaultAddr
	}
	fmt.Printf("[MAG] IST8308 found on bus %s at 0x%02X (WAI=0x%02X)\n",
		cfg.MagI2CBus, addr, ist8308.DeviceID)
	return nil
}
