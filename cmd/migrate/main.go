package main

import (
	"flag"
	"fmt"
	"log"

	"medwaste-backend/internal/config"
	"medwaste-backend/internal/database"
)

func main() {
	seed := flag.Bool("seed", false, "load demo accounts and reference data after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.Store != config.StorePostgres {
		log.Fatalf("STORE=%s has no schema to migrate", cfg.Store)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migration completed successfully!")

	if *seed {
		if err := database.Seed(db); err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
	}

	// Display summary
	var result struct {
		Users      int `db:"users"`
		Containers int `db:"containers"`
		Plants     int `db:"plants"`
		Active     int `db:"active_sessions"`
		Pending    int `db:"pending_handoffs"`
	}
	query := `
		SELECT
			(SELECT COUNT(*) FROM users) AS users,
			(SELECT COUNT(*) FROM waste_containers) AS containers,
			(SELECT COUNT(*) FROM incineration_plants WHERE active) AS plants,
			(SELECT COUNT(*) FROM collection_sessions WHERE status = 'active') AS active_sessions,
			(SELECT COUNT(*) FROM handoffs WHERE status IN ('pending', 'confirmed_by_sender', 'confirmed_by_receiver')) AS pending_handoffs
	`
	if err := db.Get(&result, query); err != nil {
		log.Fatalf("Failed to query summary: %v", err)
	}

	fmt.Println("\n============================================================")
	fmt.Println("MIGRATION SUMMARY")
	fmt.Println("============================================================")
	fmt.Printf("Users:                   %d\n", result.Users)
	fmt.Printf("Waste containers:        %d\n", result.Containers)
	fmt.Printf("Active plants:           %d\n", result.Plants)
	fmt.Printf("Active sessions:         %d\n", result.Active)
	fmt.Printf("Open handoffs:           %d\n", result.Pending)
	fmt.Println("============================================================")
}
