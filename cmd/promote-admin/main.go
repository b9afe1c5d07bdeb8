package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dimitrije/shopfront-api/internal/config"
	"github.com/dimitrije/shopfront-api/internal/database"
	"github.com/dimitrije/shopfront-api/internal/docstore"
	"github.com/dimitrije/shopfront-api/internal/models"
)

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Println("Usage: promote-admin <email> [role]")
		os.Exit(1)
	}

	email := os.Args[1]
	role := models.RoleAdmin
	if len(os.Args) == 3 {
		role = models.ParseRole(os.Args[2])
		if !role.Valid() {
			log.Fatalf("Unknown role: %s", os.Args[2])
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	previous, err := docstore.New(db).SetRole(ctx, email, role, "promote-admin")
	if err != nil {
		log.Fatalf("Failed to update role: %v", err)
	}

	if previous == models.RoleNone {
		fmt.Printf("Assigned role %s to %s\n", role, email)
		return
	}
	fmt.Printf("Changed role of %s from %s to %s\n", email, previous, role)
}
