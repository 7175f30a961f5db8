package main

import (
	"bufio"
	"context"
	"log/slog"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/cartd/internal/domain/menu"
)

const (
	bloomFPR      = 0.001
	maxLineSize   = 1 << 20
	progressEvery = 100_000
)

// stats summarizes an import run.
type stats struct {
	read       int
	invalid    int
	superseded int
	written    int
}

// importer loads menu dumps in order. When an item id occurs in several
// dumps the last occurrence wins.
type importer struct {
	writer    menu.Writer
	batchSize int
	// capacity is the expected number of items per dump.
	capacity uint
}

func (im *importer) run(ctx context.Context, files []string) (stats, error) {
	// Pass 1: one bloom filter of item ids per dump.
	filters, err := im.buildFilters(ctx, files)
	if err != nil {
		return stats{}, errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: stream dumps in order. Items that a later dump may redefine
	// are held back until that dump confirms or refutes it.
	var (
		st      stats
		batch   = make([]menu.Item, 0, im.batchSize)
		pending = make(map[string]menu.Item)
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.writer.Upsert(ctx, batch); err != nil {
			return errors.Wrap(err, "upsert batch")
		}
		st.written += len(batch)
		batch = batch[:0]
		return nil
	}

	for i, path := range files {
		later := filters[i+1:]
		err := streamItems(ctx, path, func(it menu.Item) error {
			st.read++
			if _, ok := pending[it.ID]; ok {
				delete(pending, it.ID)
				st.superseded++
			}
			if mayRecur(later, it.ID) {
				pending[it.ID] = it
				return nil
			}
			batch = append(batch, it)
			if len(batch) >= im.batchSize {
				return flush()
			}
			return nil
		}, func(err error) {
			st.invalid++
			slog.Warn("skipping invalid record", slog.String("file", path), slog.String("error", err.Error()))
		})
		if err != nil {
			return st, errors.Wrapf(err, "import %s", path)
		}
		slog.Info("dump imported",
			slog.String("file", path),
			slog.Int("read", st.read),
			slog.Int("pending", len(pending)),
		)
	}

	// Whatever is still pending was a bloom false positive.
	for _, it := range pending {
		batch = append(batch, it)
		if len(batch) >= im.batchSize {
			if err := flush(); err != nil {
				return st, err
			}
		}
	}
	if err := flush(); err != nil {
		return st, err
	}
	return st, nil
}

func mayRecur(filters []*bloom.BloomFilter, id string) bool {
	for _, f := range filters {
		if f.TestString(id) {
			return true
		}
	}
	return false
}

func (im *importer) buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(im.capacity, bloomFPR)
			var count int
			if err := streamItems(ctx, path, func(it menu.Item) error {
				filter.AddString(it.ID)
				count++
				return nil
			}, func(error) {}); err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Int("items", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamItems reads a gzip JSONL dump and calls fn for every valid item.
// Malformed records are reported to invalid and skipped.
func streamItems(ctx context.Context, path string, fn func(menu.Item) error, invalid func(error)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	var lines int
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lines++
		if lines%progressEvery == 0 {
			slog.Info("progress", slog.String("file", path), slog.Int("lines", lines))
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		raws, err := parseLine(line)
		if err != nil {
			invalid(errors.Wrapf(err, "line %d", lines))
			continue
		}
		for _, raw := range raws {
			it, err := raw.item()
			if err != nil {
				invalid(errors.Wrapf(err, "line %d", lines))
				continue
			}
			if err := fn(it); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
