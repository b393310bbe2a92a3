package main

import (
	"log"

	"github.com/peekdeck/peekdeck/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ peekdeck failed to start: %v", err)
	}
}
