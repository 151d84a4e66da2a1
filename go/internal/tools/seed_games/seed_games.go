package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/livequiz/go/internal/catalog"
	"github.com/mcdev12/livequiz/go/internal/config"
	"github.com/mcdev12/livequiz/go/internal/models"
)

const defaultGamesPath = "go/internal/assets/games.json"

func main() {
	path := defaultGamesPath
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var games []models.Game
	if err := json.Unmarshal(data, &games); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect with the server's database settings
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := catalog.NewRepository(pool)

	// 3) Upsert and count
	var (
		total   = len(games)
		written int
		skipped int
		errs    int
	)
	for _, g := range games {
		ok, err := repo.UpsertGame(ctx, g)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting game %s: %v\n", g.ID, err)
			errs++
			continue
		}
		if ok {
			written++
		} else {
			skipped++
		}
	}

	fmt.Printf(
		"Games seed complete: %d total, %d written, %d skipped, %d errors\n",
		total, written, skipped, errs,
	)
}
