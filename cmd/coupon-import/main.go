package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/coupon-engine/internal/domain/coupon"
	"github.com/xenking/coupon-engine/internal/storage/postgres"
	"github.com/xenking/coupon-engine/internal/wire"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
)

type stats struct {
	read, created, duplicates, invalid atomic.Int64
}

func main() {
	var (
		databaseURL string
		workers     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent inserts")
	flag.Usage = func() {
		_, _ = io.WriteString(flag.CommandLine.Output(),
			"usage: coupon-import [flags] FILE...\n\nFILE holds one JSON coupon per line, optionally gzip-compressed (.gz).\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args(), max(workers, 1)); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string, workers int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	im := newImporter(slog.Default(), coupon.NewAdmin(postgres.NewCouponRepository(pool)), g)

	for _, path := range files {
		slog.Info("importing file", slog.String("path", path))
		if err := im.importFile(gctx, path); err != nil {
			_ = g.Wait()
			return errors.Wrapf(err, "import %s", path)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("import summary",
		slog.Int64("read", im.st.read.Load()),
		slog.Int64("created", im.st.created.Load()),
		slog.Int64("duplicates", im.st.duplicates.Load()),
		slog.Int64("invalid", im.st.invalid.Load()),
	)
	return nil
}

// importer decodes coupon lines and creates them through the admin service.
// Codes absent from seen are new to this run and go straight to insert;
// filter hits are checked against the store first so repeats are skipped.
type importer struct {
	lg    *slog.Logger
	admin *coupon.Admin
	g     *errgroup.Group
	seen  *bloom.BloomFilter
	st    stats
}

func newImporter(lg *slog.Logger, admin *coupon.Admin, g *errgroup.Group) *importer {
	return &importer{
		lg:    lg,
		admin: admin,
		g:     g,
		seen:  bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}
}

func (im *importer) importFile(ctx context.Context, path string) error {
	return streamFile(ctx, path, func(lineNo int, line []byte) error {
		if n := im.st.read.Add(1); n%progressEvery == 0 {
			im.lg.Info("import progress",
				slog.Int64("read", n),
				slog.Int64("created", im.st.created.Load()),
			)
		}

		c, err := wire.DecodeCoupon(jx.DecodeBytes(line))
		if err != nil {
			im.st.invalid.Add(1)
			im.lg.Warn("skipping malformed line",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			return nil
		}

		maybeSeen := im.seen.TestAndAddString(coupon.NormalizeCode(c.Code))
		req := createRequest(c)
		im.g.Go(func() error {
			return im.insert(ctx, req, maybeSeen)
		})
		return nil
	})
}

func (im *importer) insert(ctx context.Context, req coupon.CreateRequest, maybeSeen bool) error {
	if maybeSeen {
		_, err := im.admin.Get(ctx, req.Code)
		switch {
		case err == nil:
			im.st.duplicates.Add(1)
			return nil
		case !errors.Is(err, coupon.ErrNotFound):
			return errors.Wrapf(err, "look up coupon %s", req.Code)
		}
	}

	_, err := im.admin.Create(ctx, req)
	var invalid *coupon.InvalidCouponError
	switch {
	case err == nil:
		im.st.created.Add(1)
	case errors.Is(err, coupon.ErrDuplicateCode):
		im.st.duplicates.Add(1)
	case errors.As(err, &invalid):
		im.st.invalid.Add(1)
		im.lg.Warn("skipping invalid coupon", slog.String("code", req.Code), slog.String("reason", invalid.Reason))
	default:
		return errors.Wrapf(err, "create coupon %s", req.Code)
	}
	return nil
}

// createRequest keeps the definition fields of an exported coupon. Usage
// counters and identifiers are assigned fresh on import.
func createRequest(c *coupon.Coupon) coupon.CreateRequest {
	req := coupon.CreateRequest{
		Code:              c.Code,
		DiscountType:      c.DiscountType,
		DiscountValue:     c.DiscountValue,
		MaxUsageCount:     c.MaxUsageCount,
		ValidUntil:        c.ValidUntil,
		MinPurchaseAmount: c.MinPurchaseAmount,
		Description:       c.Description,
	}
	if !c.ValidFrom.IsZero() {
		req.ValidFrom = &c.ValidFrom
	}
	return req
}

// streamFile calls fn for each non-empty line of path with its 1-based line
// number, decompressing .gz files on the fly.
func streamFile(ctx context.Context, path string, fn func(lineNo int, line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "create gzip reader for %s", path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
