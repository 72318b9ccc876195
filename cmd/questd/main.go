package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lanternvale/questline/internal/config"
	"github.com/lanternvale/questline/internal/engine"
	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/quest"
	"github.com/lanternvale/questline/internal/save"
)

func main() {
	configFile := flag.String("config", "data/questd.yaml", "Path to engine config YAML file")
	contentDir := flag.String("content", "", "Quest content directory (overrides config)")
	tickRate := flag.Duration("tick", 100*time.Millisecond, "Engine tick interval")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyEnvOverrides()
	if *contentDir != "" {
		cfg.Content.Dir = *contentDir
	}

	logger.Initialize(cfg.Logging)
	logger.Info("Starting quest engine daemon")

	registry := quest.NewRegistry()
	if err := registry.LoadFromDirectory(cfg.Content.Dir); err != nil {
		log.Fatalf("Failed to load quest content from %s: %v", cfg.Content.Dir, err)
	}
	logger.Info("Quest content loaded", "dir", cfg.Content.Dir, "quests", registry.Count())

	store, err := save.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open save store: %v", err)
	}

	eng := engine.New(engine.Options{
		Config:   cfg,
		Store:    store,
		Registry: registry,
	})

	// Restore the default slot before the first tick so auto-started
	// quests see prior progress.
	eng.LoadGameAsync(cfg.AutoSave.Slot, func() {
		logger.Info("Save slot restored", "active_quests", len(eng.Progress().ActiveQuests()))
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(*tickRate)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			eng.Tick(now)
		case <-sigChan:
			logger.Info("Shutting down quest engine")
			eng.Close()
			logger.Info("Quest engine stopped")
			return
		}
	}
}
