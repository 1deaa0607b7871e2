package main

import (
	"context"
	"log"
	"os"

	"github.com/aussiebroadwan/sessions/internal/sessions/app"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx := context.Background()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "useradd":
			if err := app.UserAdd(ctx, cfg, os.Args[2:], os.Stdout); err != nil {
				log.Fatal(err)
			}
			return
		case "keys":
			if err := app.Keys(ctx, cfg, os.Args[2:], os.Stdout); err != nil {
				log.Fatal(err)
			}
			return
		}
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
