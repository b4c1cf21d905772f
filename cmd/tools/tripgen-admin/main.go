// cmd/tools/tripgen-admin/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"tripgen/internal/common/config"
	"tripgen/internal/common/database"
	"tripgen/internal/common/logger"
	"tripgen/internal/models"
	"tripgen/internal/sheet"
	"tripgen/internal/store"
	"tripgen/internal/tools"
	"tripgen/internal/tripindex"
)

const reindexPageSize = 200

func main() {
	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	reindexCmd := flag.NewFlagSet("reindex", flag.ExitOnError)
	toolsCmd := flag.NewFlagSet("tools", flag.ExitOnError)
	sheetCmd := flag.NewFlagSet("sheet", flag.ExitOnError)

	// Tools command flags
	phase := toolsCmd.String("phase", "", "Only tools offered in this phase (collecting, itinerary)")

	// Sheet command flags
	sheetFile := sheetCmd.String("file", "", "CSV file to validate and normalise")
	against := sheetCmd.String("against", "", "Optional previous CSV to diff against")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		if err := migrate(); err != nil {
			fmt.Printf("Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Schema is up to date.")

	case "reindex":
		reindexCmd.Parse(os.Args[2:])
		n, err := reindex()
		if err != nil {
			fmt.Printf("Reindex failed after %d trips: %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d trips.\n", n)

	case "tools":
		toolsCmd.Parse(os.Args[2:])
		if err := dumpTools(models.Phase(*phase)); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

	case "sheet":
		sheetCmd.Parse(os.Args[2:])
		if *sheetFile == "" {
			fmt.Println("Error: -file is required for sheet.")
			sheetCmd.Usage()
			os.Exit(1)
		}
		if err := checkSheet(*sheetFile, *against); err != nil {
			fmt.Printf("Sheet is invalid: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func openPostgres(ctx context.Context, cfg *config.Config) (*database.PostgresClient, error) {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := openPostgres(ctx, cfg)
	if err != nil {
		return err
	}
	defer pg.Close()
	return database.Migrate(ctx, pg.DB)
}

// reindex rebuilds the trip search index from Postgres.
func reindex() (int, error) {
	cfg, err := config.Load()
	if err != nil {
		return 0, err
	}
	if !cfg.Database.Elasticsearch.Enabled {
		return 0, fmt.Errorf("elasticsearch is disabled in config")
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")
	ctx := context.Background()

	pg, err := openPostgres(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer pg.Close()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		return 0, err
	}
	if err := es.Ping(ctx); err != nil {
		return 0, err
	}

	index := tripindex.New(es.Client, cfg.Database.Elasticsearch.TripIndex, log)
	if err := index.EnsureIndex(ctx); err != nil {
		return 0, err
	}

	repo := store.New(pg.DB, log).Trips
	indexed := 0
	for offset := 0; ; offset += reindexPageSize {
		page, err := repo.ListAll(ctx, reindexPageSize, offset)
		if err != nil {
			return indexed, err
		}
		for _, trip := range page {
			if err := index.Put(ctx, trip); err != nil {
				return indexed, fmt.Errorf("trip %s: %w", trip.ID, err)
			}
			indexed++
		}
		if len(page) < reindexPageSize {
			return indexed, nil
		}
	}
}

// dumpTools prints the assistant's tool definitions as JSON.
func dumpTools(phase models.Phase) error {
	defs := tools.All()
	if phase != "" {
		if phase != models.PhaseCollecting && phase != models.PhaseItinerary {
			return fmt.Errorf("unknown phase %q", phase)
		}
		filtered := defs[:0]
		for _, d := range defs {
			if tools.AllowedIn(phase, d.Name) {
				filtered = append(filtered, d)
			}
		}
		defs = filtered
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(defs)
}

func checkSheet(path, previousPath string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	parsed, err := sheet.Parse(string(raw))
	if err != nil {
		return err
	}
	fmt.Printf("Valid sheet: %d columns, %d rows.\n", len(parsed.Header), len(parsed.Rows))

	if previousPath != "" {
		prev, err := os.ReadFile(previousPath)
		if err != nil {
			return err
		}
		fmt.Printf("Changes: %s\n", sheet.DiffCSV(string(prev), parsed.String()))
	}
	fmt.Print(parsed.String())
	return nil
}

func help() {
	fmt.Println("Usage: tripgen-admin <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  migrate     Apply the Postgres schema")
	fmt.Println("  reindex     Rebuild the Elasticsearch trip index from Postgres")
	fmt.Println("  tools       Print the assistant tool definitions (-phase collecting|itinerary)")
	fmt.Println("  sheet       Validate and normalise an itinerary CSV (-file path [-against previous.csv])")
	fmt.Println("  help        Show this help message")
}
