package main

import (
	"log"

	"github.com/MrSnakeDoc/unilend/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ unilend failed to start: %v", err)
	}
}
