// Package main implements the mock events API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/eventstar/eventstar/internal/app"
	"github.com/eventstar/eventstar/internal/config"
	"github.com/eventstar/eventstar/internal/mockapi"
	"github.com/eventstar/eventstar/internal/server"
)

func main() {
	_ = godotenv.Load()

	var (
		configFile string
		addr       string
		database   string
		seedFile   string
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&addr, "addr", "", "HTTP listen address")
	flag.StringVar(&database, "database", "", "SQLite database holding raw_events")
	flag.StringVar(&seedFile, "seed", "", "JSON events file loaded by initdb")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "eventstar-mockapi - mock events API\n\n")
		fmt.Fprintf(os.Stderr, "Usage: eventstar-mockapi [options] [serve|initdb]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if addr != "" {
		cfg.MockAPI.Addr = addr
	}
	if database != "" {
		cfg.MockAPI.Database = database
	}
	if seedFile != "" {
		cfg.MockAPI.SeedFile = seedFile
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := os.MkdirAll(filepath.Dir(cfg.MockAPI.Database), 0755); err != nil {
		logger.Fatal("mockapi: failed to create database directory", zap.Error(err))
	}
	db, err := sql.Open("sqlite3", cfg.MockAPI.Database)
	if err != nil {
		logger.Fatal("mockapi: failed to open database", zap.Error(err))
	}

	switch cmd := flag.Arg(0); cmd {
	case "", "serve":
		err = serve(cfg.MockAPI, db, logger)
	case "initdb":
		err = initDB(cfg.MockAPI, db, logger)
		db.Close()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("mockapi: command failed", zap.Error(err))
	}
}

func initDB(cfg config.MockAPIConfig, db *sql.DB, logger *zap.Logger) error {
	if cfg.SeedFile == "" {
		return fmt.Errorf("no seed file configured (use -seed or EVENTSTAR_MOCKAPI_SEED_FILE)")
	}
	f, err := os.Open(cfg.SeedFile)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := mockapi.InitDB(context.Background(), db, f)
	if err != nil {
		return err
	}
	logger.Info("mockapi: database initialized",
		zap.String("database", cfg.Database),
		zap.Int("events", n),
	)
	return nil
}

func serve(cfg config.MockAPIConfig, db *sql.DB, logger *zap.Logger) error {
	sm := server.NewShutdownManager(server.DefaultShutdownConfig(), logger)
	sm.RegisterCloser(db)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mockapi.NewServer(db, logger).Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		if err := sm.ListenForSignals(context.Background()); err != nil {
			logger.Error("mockapi: shutdown error", zap.Error(err))
		}
	}()

	return server.Serve(srv, sm)
}
