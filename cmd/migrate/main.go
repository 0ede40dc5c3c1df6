package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/huntmap/internal/pkg/config"
)

const migrationsDir = "migrations"

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: migrate <up|down>")
	}

	cfg, err := config.Load("huntmap-migrate")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	files, err := migrationFiles(migrationsDir, os.Args[1])
	if err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			log.Fatalf("exec %s: %v", f, err)
		}
		fmt.Printf("OK  %s\n", f)
	}

	log.Printf("%d migrations applied (%s)", len(files), os.Args[1])
}

// migrationFiles lists the scripts for direction in apply order. Up scripts
// are NNN_name.sql run ascending; down scripts are NNN_name.down.sql run
// descending.
func migrationFiles(dir, direction string) ([]string, error) {
	all, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, err
	}

	var files []string
	for _, f := range all {
		isDown := strings.HasSuffix(f, ".down.sql")
		switch direction {
		case "up":
			if !isDown {
				files = append(files, f)
			}
		case "down":
			if isDown {
				files = append(files, f)
			}
		default:
			return nil, fmt.Errorf("unknown command: %s", direction)
		}
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s migrations in %s", direction, dir)
	}
	return files, nil
}
