// Command catalog-import loads gzip JSONL menu dumps into the fallback menu
// catalog used by cartd when the marketplace backend is unreachable.
//
// Each line is either an item with a restaurantId or a category record
// with an items array. Dumps are applied in argument order.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/cartd/internal/domain/menu"
	"github.com/xenking/cartd/internal/storage/memory"
	"github.com/xenking/cartd/internal/storage/postgres"
)

func main() {
	var (
		dataDir     string
		databaseURL string
		batchSize   int
		capacity    uint
		dryRun      bool
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory with *.jsonl.gz dumps, used when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch", 500, "items per upsert batch")
	flag.UintVar(&capacity, "expected-items", 1_000_000, "expected items per dump, sizes the bloom filters")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and dedupe without writing to the database")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if batchSize < 1 {
		batchSize = 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	files, err := dumpFiles(dataDir, flag.Args())
	if err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(ctx, files, databaseURL, batchSize, capacity, dryRun); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("catalog import completed successfully")
}

func dumpFiles(dataDir string, args []string) ([]string, error) {
	files := args
	if len(files) == 0 {
		matches, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
		if err != nil {
			return nil, errors.Wrap(err, "list dumps")
		}
		slices.Sort(matches)
		files = matches
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no dumps found in %s", dataDir)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return nil, errors.Wrapf(err, "check file %s", f)
		}
	}
	return files, nil
}

func run(ctx context.Context, files []string, databaseURL string, batchSize int, capacity uint, dryRun bool) error {
	var writer menu.Writer
	if dryRun {
		writer = memory.NewCatalog()
	} else {
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, pool); err != nil {
			return errors.Wrap(err, "run migrations")
		}
		writer = postgres.NewMenuRepository(pool)
	}

	im := &importer{writer: writer, batchSize: batchSize, capacity: capacity}
	st, err := im.run(ctx, files)
	if err != nil {
		return err
	}
	slog.Info("catalog import summary",
		slog.Int("files", len(files)),
		slog.Int("read", st.read),
		slog.Int("invalid", st.invalid),
		slog.Int("superseded", st.superseded),
		slog.Int("written", st.written),
		slog.Bool("dry_run", dryRun),
	)
	return nil
}
