package main

import (
	"log"

	"github.com/overlaylabs/copresence/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ copresence failed to start: %v", err)
	}
}
