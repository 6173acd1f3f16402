package main

import (
	"log"

	"coi-notes-be/internal/config"
	"coi-notes-be/internal/model"
	"coi-notes-be/pkg/database"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection, true)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to enable pgcrypto: %v. Continuing...", err)
	}

	models := model.All()
	log.Printf("Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		log.Fatal("Error: AutoMigrate failed:", err)
	}

	log.Println("Migration complete")
}
