package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/ladiesman540/crane-platform/internal/config"
	"github.com/ladiesman540/crane-platform/internal/seed"
	"github.com/ladiesman540/crane-platform/internal/store"
)

func main() {
	fixturePath := flag.String("f", "deploy/fixture.example.yaml", "fixture YAML to load")
	configPath := flag.String("config", os.Getenv("CRANE_CONFIG"), "optional YAML config file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{})))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	fh, err := os.Open(*fixturePath)
	if err != nil {
		slog.Error("open fixture failed", "path", *fixturePath, "error", err)
		os.Exit(1)
	}
	defer fh.Close()
	fixture, err := seed.Parse(fh)
	if err != nil {
		slog.Error("invalid fixture", "path", *fixturePath, "error", err)
		os.Exit(1)
	}

	db, err := store.OpenPostgres(cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.DBName, cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.SSLMode)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.New(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	res, err := seed.Apply(context.Background(), repo, fixture)
	if err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}

	h := res.Hierarchy
	fmt.Printf("Seed complete\n")
	fmt.Printf("  Org:     %s (%s)\n", h.Organization.Name, h.Organization.ID)
	for _, u := range h.Users {
		fmt.Printf("  User:    %s (%s)\n", u.Email, u.Role)
	}
	for _, k := range res.Keys {
		fmt.Printf("  API key: %s  %s\n", k.Label, k.Raw)
	}
	for _, s := range h.Sensors {
		fmt.Printf("  Sensor:  %s (%s)\n", s.MACAddress, s.ID)
	}
}
