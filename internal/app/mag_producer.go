// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/ist8308"
	"github.com/relabs-tech/mag_computer/internal/mag"
	"github.com/relabs-tech/mag_computer/internal/orientation"
)

// RunMagProducer opens the I2C bus, starts the IST8308 driver, and
// publishes calibrated samples and driver status over MQTT until
// interrupted.
func RunMagProducer() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("mag: config init failed: %w", err)
	}
	cfg := config.Get()

	rotation := orientation.RotationNone
	if cfg.MagRotation != "" {
		var err error
		rotation, err = orientation.Parse(cfg.MagRotation)
		if err != nil {
			return fmt.Errorf("mag: %w", err)
		}
	}

	// Initialize periph host.
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("mag: periph host init failed: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return fmt.Errorf("mag: i2c open failed on bus %s: %w", cfg.MagI2CBus, err)
	}
	defer bus.Close()

	// MQTT client.
	clientID := cfg.MQTTClientIDProducer
	if clientID == "" {
		clientID = "mag-producer"
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.MQTTBroker).SetClientID(clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mag: mqtt connect error: %w", token.Error())
	}
	defer client.Disconnect(250)

	topic := cfg.TopicMag
	if topic == "" {
		topic = "mag/field"
	}
	statusTopic := cfg.TopicMagStatus
	if statusTopic == "" {
		statusTopic = "mag/status"
	}

	collector := mag.NewCollector(rotation, func(s mag.Sample) {
		b, err := json.Marshal(s)
		if err != nil {
			log.Printf("mag: sample marshal error: %v", err)
			return
		}
		client.Publish(topic, 0, false, b)
	})

	transport := ist8308.NewI2CTransport(bus, cfg.MagI2CAddr)
	driver := ist8308.New(transport, collector, ist8308.Opts{
		SampleInterval: time.Duration(cfg.MagSampleInterval) * time.Millisecond,
	})

	if err := driver.Init(); err != nil {
		return fmt.Errorf("mag: driver init failed: %w", err)
	}
	log.Printf("mag: producer started (bus=%s addr=0x%02X rotation=%s)",
		cfg.MagI2CBus, cfg.MagI2CAddr, rotation)

	statusMS := cfg.StatusInterval
	if statusMS <= 0 {
		statusMS = 5000
	}
	statusTicker := time.NewTicker(time.Duration(statusMS) * time.Millisecond)
	defer statusTicker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-statusTicker.C:
			st := driver.GetStatus()
			b, err := json.Marshal(st)
			if err != nil {
				log.Printf("mag: status marshal error: %v", err)
				continue
			}
			client.Publish(statusTopic, 0, true, b)
		case s := <-sig:
			log.Printf("mag: received %v, stopping", s)
			driver.Stop()
			driver.PrintInfo()
			return nil
		}
	}
}
