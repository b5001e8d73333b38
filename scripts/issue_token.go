package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/pkg/auth"
)

func main() {
	name := flag.String("name", "operator", "operator name embedded in the token")
	id := flag.String("id", "", "operator id (random when empty)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	operatorID := uuid.New()
	if *id != "" {
		if operatorID, err = uuid.Parse(*id); err != nil {
			log.Fatalf("invalid operator id: %v", err)
		}
	}

	token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenLifespan).GenerateToken(operatorID, *name)
	if err != nil {
		log.Fatalf("cannot issue token: %v", err)
	}

	fmt.Printf("operator %s (%s), valid for %s:\n%s\n", *name, operatorID, cfg.Auth.TokenLifespan, token)
}
