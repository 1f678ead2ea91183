// clear-trades deletes today's event log rows for one symbol so a
// paper or observe run can be replayed from a clean slate without
// dropping the whole events table.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onebar-systems/onebar/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.json", "path to configuration file")
	symbolFlag := flag.String("symbol", "", "symbol to clear (defaults to the config's symbol)")
	confirmFlag := flag.Bool("confirm", false, "confirm deletion (must be explicit)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	symbol := *symbolFlag
	if symbol == "" {
		symbol = cfg.Symbol
	}

	if !*confirmFlag {
		fmt.Println("SAFETY CHECK - must confirm deletion")
		fmt.Println()
		fmt.Printf("This will delete all events for symbol %q from today (%s).\n", symbol, time.Now().Format("2006-01-02"))
		fmt.Println()
		fmt.Println("To proceed, run:")
		fmt.Println("  go run ./cmd/clear-trades --confirm")
		fmt.Println()
		os.Exit(0)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	today := time.Now().Format("2006-01-02")
	fmt.Printf("deleting events for %s from %s\n\n", symbol, today)

	result, err := db.Exec(`
		DELETE FROM events
		WHERE stream_id = $1 AND DATE(created_at) = $2
	`, symbol, today)
	if err != nil {
		log.Fatalf("failed to delete events: %v", err)
	}
	deleted, _ := result.RowsAffected()
	fmt.Printf("deleted %d events\n\n", deleted)

	fmt.Println("clean slate ready. You can now run:")
	fmt.Println("  go run ./cmd/onebar --config " + *configPath)
}
