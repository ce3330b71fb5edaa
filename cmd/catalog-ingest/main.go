// Command catalog-ingest merges gzipped vendor product feeds into the
// catalog. Feeds are JSON-lines files, one offer per line. A SKU carried by
// a single vendor is upserted as-is; a SKU offered by two or more vendors is
// resolved to the cheapest offer. Cross-feed detection uses per-feed bloom
// filters so the feeds never have to fit in memory at once.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/digishop/internal/domain/product"
	"github.com/xenking/digishop/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

// offer is one vendor feed line.
type offer struct {
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Stock    int             `json:"stock"`
	Category string          `json:"category"`
	ImageURL string          `json:"image_url"`
}

// fileResult holds contested SKUs found in a single feed during pass 2.
type fileResult struct {
	contested map[string]uint
}

func main() {
	var (
		dataDir     string
		numFeeds    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing feedN.gz vendor files")
	flag.IntVar(&numFeeds, "feeds", 3, "number of vendor feed files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFeeds, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFeeds int, databaseURL string) error {
	files := make([]string, numFeeds)
	for i := 0; i < numFeeds; i++ {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("feed%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: Build per-feed SKU bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("feeds", numFeeds))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Find SKUs offered by 2+ vendors.
	slog.Info("pass 2: finding contested SKUs")

	contested, err := findContestedSKUs(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find contested SKUs")
	}

	slog.Info("contested SKUs found", slog.Int("count", len(contested)))

	// Pass 3: Stream offers into the catalog, cheapest offer wins for
	// contested SKUs.
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := ingestOffers(ctx, postgres.NewProductRepository(pool), files, contested); err != nil {
		return errors.Wrap(err, "ingest offers")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per feed, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFeed(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFeed(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line []byte) error {
			var o offer
			if err := json.Unmarshal(line, &o); err != nil || o.SKU == "" {
				return nil // skip malformed lines
			}
			filter.AddString(o.SKU)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("feed", idx+1),
					slog.Uint64("offers", count),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "build filter for feed %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("feed", idx+1),
			slog.Uint64("total_offers", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findContestedSKUs re-streams each feed and checks SKUs against OTHER
// feeds' bloom filters. A SKU is contested if 2+ vendors offer it.
func findContestedSKUs(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findContestedInFeed(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks from all feeds.
	merged := make(map[string]uint)
	for _, r := range results {
		for sku, mask := range r.contested {
			merged[sku] |= mask
		}
	}

	contested := make(map[string]struct{})
	for sku, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			contested[sku] = struct{}{}
		}
	}

	return contested, nil
}

func findContestedInFeed(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		contested := make(map[string]uint)
		feedBit := uint(1) << uint(idx)

		if err := streamGzFile(ctx, path, func(line []byte) error {
			var o offer
			if err := json.Unmarshal(line, &o); err != nil || o.SKU == "" {
				return nil
			}

			// Check if this SKU appears in any OTHER feed's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(o.SKU) {
					contested[o.SKU] |= feedBit
					break
				}
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "scan feed %d for contested SKUs", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("feed", idx+1),
			slog.Int("contested", len(contested)),
		)

		results[idx] = fileResult{contested: contested}
		return nil
	}
}

// ingestOffers streams every feed sequentially. Uncontested offers are
// upserted directly; contested SKUs are resolved in memory and written last.
func ingestOffers(
	ctx context.Context,
	repo *postgres.ProductRepository,
	files []string,
	contested map[string]struct{},
) error {
	best := make(map[string]offer, len(contested))
	var written int

	for idx, path := range files {
		if err := streamGzFile(ctx, path, func(line []byte) error {
			var o offer
			if err := json.Unmarshal(line, &o); err != nil || o.SKU == "" {
				return nil
			}

			if _, ok := contested[o.SKU]; ok {
				if cur, seen := best[o.SKU]; !seen || o.Price.LessThan(cur.Price) {
					best[o.SKU] = o
				}
				return nil
			}

			if err := repo.Upsert(ctx, toProduct(o)); err != nil {
				return errors.Wrapf(err, "upsert product %s", o.SKU)
			}
			written++
			return nil
		}); err != nil {
			return errors.Wrapf(err, "ingest feed %d", idx+1)
		}
	}

	for sku, o := range best {
		if err := repo.Upsert(ctx, toProduct(o)); err != nil {
			return errors.Wrapf(err, "upsert contested product %s", sku)
		}
		written++
	}

	slog.Info("catalog written", slog.Int("products", written), slog.Int("contested_resolved", len(best)))
	return nil
}

func toProduct(o offer) product.Product {
	return product.Product{
		ID:       o.SKU,
		Name:     o.Name,
		Price:    o.Price,
		Stock:    o.Stock,
		Category: o.Category,
		ImageURL: o.ImageURL,
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Bytes()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
