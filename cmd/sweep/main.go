// Package main is the one-shot repair CLI. It runs a single sweep against
// the database and exits, defaulting to a dry run that rolls every write
// back.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/modelcurator/metagraph/domain/drivers"
	"github.com/modelcurator/metagraph/domain/graphstore"
	"github.com/modelcurator/metagraph/domain/relationships"
	"github.com/modelcurator/metagraph/domain/taxonomy"
	"github.com/modelcurator/metagraph/internal/config"
	"github.com/modelcurator/metagraph/pkg/logger"
)

// errDryRun forces a rollback after a dry-run sweep has reported its work.
var errDryRun = errors.New("dry run, rolling back")

func main() {
	var (
		sweepName string
		dryRun    bool
		pageSize  int
		showHelp  bool
	)

	flag.StringVar(&sweepName, "sweep", "", "Sweep to run: allpairs|groups|drivers|sentinels (required)")
	flag.BoolVar(&dryRun, "dry-run", true, "Preview changes without applying (default: true)")
	flag.IntVar(&pageSize, "page-size", 0, "Override SWEEP_PAGE_SIZE for paged sweeps")
	flag.BoolVar(&showHelp, "h", false, "Show help")
	flag.Parse()

	if showHelp {
		printUsage()
		os.Exit(0)
	}

	switch sweepName {
	case "allpairs", "groups", "drivers", "sentinels":
	case "":
		fmt.Fprintln(os.Stderr, "Error: -sweep flag is required")
		printUsage()
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown sweep %q\n", sweepName)
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if pageSize > 0 {
		cfg.Sweep.PageSize = pageSize
	}

	sqlDB, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		fmt.Fprintf(os.Stderr, "Error pinging database: %v\n", err)
		os.Exit(1)
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	defer db.Close()

	log := logger.NewLogger()
	store := graphstore.NewRepository(db, log)
	ctx := context.Background()

	run := func(ctx context.Context, st graphstore.Store) error {
		switch sweepName {
		case "allpairs":
			report, err := relationships.NewService(st, log, cfg).AuditAllPairsRelationships(ctx, nil)
			if err != nil {
				return err
			}
			fmt.Printf("all-pairs: created=%d normalized=%d removed=%d failed=%d\n",
				report.Created, report.Normalized, report.Removed, len(report.Errors))

		case "groups":
			report, err := taxonomy.NewService(st, log, cfg).AuditGroupPartExclusivity(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("groups: checked=%d repaired=%d removed=%d failed=%d\n",
				report.Checked, report.Repaired, report.Removed, len(report.Errors))
			for _, g := range report.Groups {
				fmt.Printf("  %s -> %s (removed %v, counts %v", g.GroupName, g.ChosenPart, g.RemovedParts, g.Counts)
				if g.Flag != "" {
					fmt.Printf(", %s", g.Flag)
				}
				fmt.Println(")")
			}

		case "drivers":
			svc := drivers.NewService(st, log)
			targets, err := selectorTargets(ctx, st, cfg.Sweep.PageSize)
			if err != nil {
				return err
			}
			// A repair sweep must never mint driver nodes from stale
			// selectors; missing names come back as per-item errors.
			res, err := svc.ReconcileAll(ctx, targets, drivers.PolicyRequireExisting)
			if err != nil {
				return err
			}
			fmt.Printf("drivers: processed=%d created=%d deleted=%d failed=%d\n",
				res.Processed, res.Created, res.Deleted, len(res.Errors))
			for _, item := range res.Errors {
				fmt.Printf("  %s: %s\n", item.ItemID, item.Cause)
			}

		case "sentinels":
			removed, err := drivers.NewService(st, log).CleanupWildcardSentinels(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("sentinels: removed=%d\n", removed)
		}
		return nil
	}

	if dryRun {
		fmt.Println("Dry run: changes will be rolled back. Re-run with -dry-run=false to apply.")
		err = store.RunInTx(ctx, func(ctx context.Context, tx graphstore.Store) error {
			if err := run(ctx, tx); err != nil {
				return err
			}
			return errDryRun
		})
		if errors.Is(err, errDryRun) {
			err = nil
		}
	} else {
		err = run(ctx, store)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running sweep: %v\n", err)
		os.Exit(1)
	}
}

// selectorTargets pages through every entity carrying a persisted driver
// selector and turns them into a backfill batch.
func selectorTargets(ctx context.Context, store graphstore.Store, pageSize int) ([]drivers.ReconcileTarget, error) {
	var targets []drivers.ReconcileTarget
	for _, kind := range []drivers.EntityKind{drivers.KindObject, drivers.KindVariable, drivers.KindList} {
		for offset := 0; ; offset += pageSize {
			nodes, err := store.MatchNodes(ctx, graphstore.NodeFilter{
				Label:  kind.Label(),
				Limit:  pageSize,
				Offset: offset,
			})
			if err != nil {
				return nil, err
			}
			if len(nodes) == 0 {
				break
			}
			for _, node := range nodes {
				selector := node.PropString(drivers.SelectorProp)
				if selector == "" {
					continue
				}
				targets = append(targets, drivers.ReconcileTarget{
					EntityID: node.ID,
					Kind:     kind,
					Selector: selector,
				})
			}
			if len(nodes) < pageSize {
				break
			}
		}
	}
	return targets, nil
}

func printUsage() {
	fmt.Println(`Usage: sweep -sweep <name> [-dry-run=false] [-page-size N]

Sweeps:
  allpairs   repair the default relationship mesh between Objects
  groups     enforce single-part ownership of Groups
  drivers    re-reconcile driver edges from persisted selectors
  sentinels  delete literal "ALL" driver nodes left by legacy writers

Connection settings come from the environment (POSTGRES_*), with .env and
.env.local loaded when present.`)
}
