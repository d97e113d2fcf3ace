package main

import (
	"flag"
	"log"

	"github.com/stockpilot/auth-service/internal/config"
	"github.com/stockpilot/auth-service/users/postgres"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	c := config.New()
	if err := postgres.Migrate(c.GetDatabaseURL(), *direction); err != nil {
		log.Fatalf("migrate %s: %s", *direction, err)
	}
	log.Printf("migrations applied (%s)", *direction)
}
