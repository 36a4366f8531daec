package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mag_config.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFull(t *testing.T) {
	path := writeConfig(t, `
# mag_computer configuration
MQTT_BROKER=tcp://localhost:1883
MQTT_CLIENT_ID_PRODUCER=mag-producer

TOPIC_MAG=mag/field
TOPIC_MAG_STATUS=mag/status

MAG_I2C_BUS=1
MAG_I2C_ADDR=0x0C
MAG_ROTATION=yaw90
MAG_SAMPLE_INTERVAL=20
STATUS_INTERVAL=5000

WEB_SERVER_PORT=8080
DISPLAY_I2C_ADDR=0x3C
DISPLAY_UPDATE_INTERVAL=250
REGISTER_DEBUG_PORT=8090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTBroker != "tcp://localhost:1883" {
		t.Errorf("broker = %q", cfg.MQTTBroker)
	}
	if cfg.MagI2CAddr != 0x0C {
		t.Errorf("addr = 0x%X, want 0x0C", cfg.MagI2CAddr)
	}
	if cfg.MagRotation != "yaw90" {
		t.Errorf("rotation = %q", cfg.MagRotation)
	}
	if cfg.MagSampleInterval != 20 || cfg.StatusInterval != 5000 {
		t.Errorf("intervals = %d / %d", cfg.MagSampleInterval, cfg.StatusInterval)
	}
	if cfg.DisplayI2CAddr != 0x3C {
		t.Errorf("display addr = 0x%X", cfg.DisplayI2CAddr)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=tcp://x\nMAG_I2C_BUS=1\nBOGUS=1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown key must be rejected")
	}
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER tcp://x\n")
	if _, err := Load(path); err == nil {
		t.Fatal("malformed line must be rejected")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	path := writeConfig(t, "MAG_I2C_BUS=1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("missing MQTT_BROKER must fail validation")
	}

	path = writeConfig(t, "MQTT_BROKER=tcp://x\n")
	if _, err := Load(path); err == nil {
		t.Fatal("missing MAG_I2C_BUS must fail validation")
	}
}

func TestBadNumericValues(t *testing.T) {
	cases := []string{
		"MAG_I2C_ADDR=zz",
		"MAG_SAMPLE_INTERVAL=-5",
		"WEB_SERVER_PORT=http",
	}
	for _, line := range cases {
		path := writeConfig(t, "MQTT_BROKER=tcp://x\nMAG_I2C_BUS=1\n"+line+"\n")
		if _, err := Load(path); err == nil {
			t.Errorf("%q must be rejected", line)
		}
	}
}
