package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/config"
	"github.com/farert/farert-companion/internal/database"
	"github.com/farert/farert-companion/internal/offline"
	"github.com/farert/farert-companion/internal/version"
)

func main() {
	var sweepOnly bool
	flag.BoolVar(&sweepOnly, "sweep-only", false, "only delete cache generations other than the current one")
	flag.Parse()

	_ = godotenv.Load()

	var dbCfg config.DatabaseConfig
	if err := env.Parse(&dbCfg); err != nil {
		log.Fatalf("failed to read store configuration: %v", err)
	}
	var offlineCfg config.OfflineConfig
	if err := env.Parse(&offlineCfg); err != nil {
		log.Fatalf("failed to read offline configuration: %v", err)
	}
	if dbCfg.Driver == config.DriverMemory {
		log.Fatal("STORE_DRIVER=memory cannot hold a precached generation between runs")
	}

	origin, err := offlineCfg.OriginURL()
	if err != nil {
		log.Fatal(err)
	}

	manifest := offline.NewManifest()
	if offlineCfg.ManifestPath != "" {
		manifest, err = offline.LoadManifest(offlineCfg.ManifestPath)
		if err != nil {
			log.Fatal(err)
		}
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	network := http.DefaultTransport.(*http.Transport).Clone()
	network.ResponseHeaderTimeout = offlineCfg.FetchTimeout

	agent, err := offline.NewAgent(offline.Config{
		Version:       version.Version,
		Origin:        origin,
		Manifest:      manifest.With(offlineCfg.Precache...),
		Storage:       database.NewCacheRepository(db),
		Network:       network,
		Logger:        logger,
		Concurrency:   offlineCfg.Concurrency,
		MaxEntryBytes: offlineCfg.MaxEntryBytes,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), offlineCfg.FetchTimeout)
	defer cancel()

	if sweepOnly {
		removed, err := agent.Sweep(ctx)
		if err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		fmt.Printf("Removed %d stale cache generations\n", removed)
		return
	}

	fmt.Printf("Precaching %d paths from %s into %s\n", agent.Manifest().Len(), origin, agent.CacheName())
	if err := agent.Install(ctx); err != nil {
		log.Fatalf("install failed: %v", err)
	}
	if err := agent.Activate(ctx); err != nil {
		log.Fatalf("activate failed: %v", err)
	}
	fmt.Printf("Cache %s is active\n", agent.CacheName())
}
