package main

import (
	"context"
	"log"

	"github.com/aturkov/custodykeeper/internal/logging"
	"github.com/aturkov/custodykeeper/internal/server"
	"github.com/aturkov/custodykeeper/internal/server/config"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()
	logger := logging.NewDefault()

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Printf("%v", err)
		return
	}
	defer app.Close()

	app.Run(ctx)
}
