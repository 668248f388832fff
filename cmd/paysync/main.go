package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/brickellbay/paysync/internal/config"
	"github.com/brickellbay/paysync/internal/database"
	"github.com/brickellbay/paysync/internal/server"
	"github.com/brickellbay/paysync/internal/service"
	"github.com/brickellbay/paysync/internal/trace"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return err
	}
	if err := database.RunMigrations(cfg.Database.Path, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.SeedDefaults(ctx, db, cfg.Matching.PrimaryBank); err != nil {
		return err
	}

	tracer := trace.NewFromEnv()
	svc := service.New(db, cfg.Matching, cfg.AI, tracer, log)
	maint := service.NewMaintenance(db)
	srv := server.New(svc, maint, tracer, log, cfg.Server)

	return server.Run(ctx, cfg.Server.Addr, srv.Handler(), log)
}
