package main

import (
	"log"

	"github.com/relabs-tech/mag_computer/internal/app"
)

func main() {
	log.Println("starting mag-computer display")

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
