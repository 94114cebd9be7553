// twin-apiai serves an in-memory behavioral twin of the API.ai v1 intents and
// entities API, with the /admin control plane for seeding and fault injection.
package main

import (
	"log"
	"os"

	"github.com/wondertwin-ai/apiai-git/internal/twin/admin"
	"github.com/wondertwin-ai/apiai-git/internal/twin/api"
	"github.com/wondertwin-ai/apiai-git/internal/twin/store"
	"github.com/wondertwin-ai/apiai-git/internal/twin/twincore"
)

func main() {
	cfg := twincore.ParseFlags("twin-apiai")
	if cfg.Port == 0 {
		cfg.Port = 12150
	}

	twin := twincore.New(cfg)
	memStore := store.NewMemory()

	apiHandler := api.NewHandler(memStore, twin.Middleware(), cfg.Token)
	apiHandler.Routes(twin.Router)

	adminHandler := admin.NewHandler(memStore, twin.Middleware())
	adminHandler.Routes(twin.Router)

	if cfg.SeedFile != "" {
		data, err := os.ReadFile(cfg.SeedFile)
		if err != nil {
			log.Fatalf("failed to read seed file: %v", err)
		}
		if err := memStore.LoadState(data); err != nil {
			log.Fatalf("failed to load seed data: %v", err)
		}
		twin.Logger.Info("loaded seed data", "file", cfg.SeedFile)
	}

	twin.Logger.Info("twin-apiai ready",
		"port", cfg.Port,
		"intents", memStore.Intents.Count(),
		"entities", memStore.Entities.Count(),
	)

	if err := twin.Serve(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
