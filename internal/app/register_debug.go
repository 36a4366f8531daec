package app

import (
	"fmt"
	"log"
	"net/http"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/ist8308"
)

// RunRegisterDebug serves the websocket register-inspection tool over
// the live sensor transport. Meant for bench bring-up; do not run it
// next to a running producer, the bus address is single-owner.
func RunRegisterDebug() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("register_debug: config init failed: %w", err)
	}
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("register_debug: periph host init failed: %w", err)
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		return fmt.Errorf("register_debug: i2c open failed on bus %s: %w", cfg.MagI2CBus, err)
	}
	defer bus.Close()

	transport := ist8308.NewI2CTransport(bus, cfg.MagI2CAddr)

	http.HandleFunc("/ws", handleRegisterDebugWS(transport))

	port := cfg.RegisterDebugPort
	if port == 0 {
		port = 8090
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("register_debug: listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
