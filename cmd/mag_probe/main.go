package main

import (
	"log"

	"github.com/relabs-tech/mag_computer/internal/app"
)

func main() {
	if err := app.RunMagProbe(); err != nil {
		log.Fatalf("probe failed: %v", err)
	}
}
