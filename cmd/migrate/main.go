// Command migrate applies the embedded SQL migrations to the configured database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pratik-mahalle/farmlink/internal/config"
	"github.com/pratik-mahalle/farmlink/internal/repository/postgres"
	"github.com/pratik-mahalle/farmlink/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	fmt.Printf("Connected to %s database\n", cfg.Database.Driver)

	applied, err := postgres.RunMigrations(ctx, db, migrations.GetFS())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}

	if applied == 0 {
		fmt.Println("Database is up to date")
		return
	}
	fmt.Printf("Applied %d migration(s)\n", applied)
}
