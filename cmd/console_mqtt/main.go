package main

import (
	"log"

	"github.com/relabs-tech/mag_computer/internal/app"
)

func main() {
	log.Println("starting mag-computer console (MQTT subscriber)")

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
