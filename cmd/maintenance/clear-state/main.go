package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/farert/farert-companion/internal/config"
	"github.com/farert/farert-companion/internal/database"
)

func main() {
	var (
		profileFlag   string
		deleteProfile bool
	)
	flag.StringVar(&profileFlag, "profile", "", "profile id whose durable state is cleared")
	flag.BoolVar(&deleteProfile, "delete-profile", false, "also remove the profile itself")
	flag.Parse()

	profileID, err := uuid.Parse(profileFlag)
	if err != nil {
		log.Fatalf("-profile must be a valid profile id: %v", err)
	}

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	// Only the store section is needed here
	var dbCfg config.DatabaseConfig
	if err := env.Parse(&dbCfg); err != nil {
		log.Fatalf("failed to read store configuration: %v", err)
	}
	if dbCfg.Driver == config.DriverMemory {
		log.Fatal("STORE_DRIVER=memory has no durable state to clear")
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	removed, err := database.NewStateRepository(db).DeleteNamespace(profileID.String())
	if err != nil {
		log.Fatalf("failed to clear profile state: %v", err)
	}
	fmt.Printf("Removed %d state entries for profile %s\n", removed, profileID)

	if deleteProfile {
		if err := database.NewProfileRepository(db).DeleteProfile(profileID.String()); err != nil {
			log.Fatalf("failed to delete profile: %v", err)
		}
		fmt.Printf("Deleted profile %s\n", profileID)
	}
}
