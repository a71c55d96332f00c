package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grupofarma/pharma_backend/config"
	"github.com/grupofarma/pharma_backend/legacysync"
	"github.com/grupofarma/pharma_backend/models"
	"github.com/grupofarma/pharma_backend/utils"
)

// legacy-backfill runs the one-off data migrations against the canonical
// database from the command line, without going through the HTTP service.
//
// Modes:
//   -mode=relink    relink historical sales to canonical entities (default)
//   -mode=backfill  pre-create entities from the full legacy registries
//
// Intended to be run off-hours against a freshly restored legacy pair.
func main() {
	mode := flag.String("mode", "relink", "relink or backfill")
	dryRun := flag.Bool("dry-run", false, "If true, do not write; only report what would run")
	skipMigrate := flag.Bool("skip-migrate", false, "If true, skip AutoMigrate on startup")
	flag.Parse()

	if *mode != "relink" && *mode != "backfill" {
		fmt.Fprintln(os.Stderr, "-mode must be relink or backfill")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if !*skipMigrate {
		models.MigrateTable()
	}

	store := legacysync.NewGormStore()
	legacy := legacysync.NewLegacyAdapter()
	resolver := legacysync.NewResolver(store, legacy)
	migrator := legacysync.NewMigrator(store, resolver, legacy)

	if *dryRun {
		sales, err := store.UnlinkedSales(context.Background())
		if err != nil {
			fmt.Fprintln(os.Stderr, "could not load unlinked sales:", err)
			os.Exit(1)
		}
		fmt.Printf("[dry-run] mode=%s unlinked_sales=%d secondary_branch=%d\n",
			*mode, len(sales), config.GetLegacySecondaryBranch())
		return
	}

	ctx := context.Background()
	var err error
	if *mode == "backfill" {
		err = migrator.RunBackfill(ctx)
	} else {
		err = migrator.RunRelink(ctx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "migration did not start:", err)
		os.Exit(1)
	}

	progress := migrator.Progress()
	out, err := json.MarshalIndent(progress, "", "  ")
	utils.ErrorPanic(err)
	fmt.Println(string(out))
	if progress != nil && strings.EqualFold(progress.Status, legacysync.MigrationStatusFailed) {
		os.Exit(1)
	}
}
