package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/mag"
)

// displayData holds the latest sample for rendering.
type displayData struct {
	mu         sync.RWMutex
	sample     mag.Sample
	haveSample bool
}

// RunDisplay renders live field components and compass heading on an
// SSD1306 OLED.
func RunDisplay() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("display: config init failed: %w", err)
	}
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	// TODO: honor DISPLAY_I2C_ADDR; upstream ssd1306.NewI2C hardwires
	// address 0x3C, so panels strapped to 0x3D need a patched opts path.
	display, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Println("display: initialized")

	data := &displayData{}

	clientID := cfg.MQTTClientIDDisplay
	if clientID == "" {
		clientID = "mag-display-subscriber"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	topic := cfg.TopicMag
	if topic == "" {
		topic = "mag/field"
	}
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s mag.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: sample unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.sample = s
		data.haveSample = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", topic)

	intervalMS := cfg.DisplayUpdateInterval
	if intervalMS <= 0 {
		intervalMS = 250
	}
	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		data.mu.RLock()
		sample := data.sample
		have := data.haveSample
		data.mu.RUnlock()

		if err := updateMagDisplay(display, sample, have); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

func updateMagDisplay(dev *ssd1306.Dev, s mag.Sample, haveData bool) error {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Magnetometer"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("X:%7.1f uT", s.Mx)))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("Y:%7.1f uT", s.My)))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("Z:%7.1f uT", s.Mz)))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("H:%5.0f |B|%5.1f", heading(s.Mx, s.My), s.Norm)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// heading computes the horizontal compass heading in degrees [0, 360).
// Valid only when the sensor is roughly level.
func heading(mx, my float64) float64 {
	h := math.Atan2(my, mx) * 180.0 / math.Pi
	if h < 0 {
		h += 360.0
	}
	return h
}
