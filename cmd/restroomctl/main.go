package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/db"
	"github.com/Clark-Hu/restroom-finder/internal/config"
	"github.com/Clark-Hu/restroom-finder/internal/feed"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
	"github.com/Clark-Hu/restroom-finder/internal/store"
)

var (
	ErrSourceRequired = errors.New("exactly one of --file or --url is required")
	ErrNameRequired   = errors.New("counter NAME argument required")
)

// deps is built lazily so --help works without a database.
type deps struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store
	repo   *repository.Repository
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "restroomctl",
		Usage: "Restroom finder administration tool",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply pending database migrations",
				Action: withDeps(handleMigrate),
			},
			{
				Name:  "import",
				Usage: "Import restrooms from a JSON dataset",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Path to a local JSON dataset",
					},
					&cli.StringFlag{
						Name:    "url",
						Aliases: []string{"u"},
						Usage:   "Base URL of the upstream restroom feed (defaults to FEED_URL)",
					},
					&cli.IntFlag{
						Name:    "workers",
						Aliases: []string{"w"},
						Value:   4,
						Usage:   "Number of concurrent writers",
					},
				},
				Action: withDeps(handleImport),
			},
			{
				Name:   "backfill-locations",
				Usage:  "Rebuild location points from stored coordinates",
				Action: withDeps(handleBackfill),
			},
			{
				Name:      "seq",
				Usage:     "Show or advance a named counter",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "next",
						Usage: "Advance the counter instead of reading it",
					},
				},
				Action: withDeps(handleSeq),
			},
		},
	}
}

func withDeps(fn func(ctx context.Context, c *cli.Command, d *deps) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger, err := logging.New(cfg.LogLevel, "console")
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		st, err := store.New(ctx, cfg.DBURL, store.Options{
			MaxConns:               int32(cfg.DBMaxConns),
			ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
			StatementCacheCapacity: cfg.DBStatementCache,
			Logger:                 logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer st.Close()

		return fn(ctx, c, &deps{cfg: cfg, logger: logger, store: st, repo: repository.New(st)})
	}
}

func handleMigrate(ctx context.Context, _ *cli.Command, d *deps) error {
	applied, err := store.Migrate(ctx, d.store.Pool(), db.Migrations, "migrations", d.logger)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		d.logger.Info("No new migrations to run (database is up to date)")
		return nil
	}
	d.logger.Info("Successfully migrated", zap.Strings("versions", applied))
	return nil
}

func handleImport(ctx context.Context, c *cli.Command, d *deps) error {
	src, err := importSource(c.String("file"), c.String("url"), d)
	if err != nil {
		return err
	}

	result, err := feed.NewImporter(d.repo.Restrooms, int(c.Int("workers")), d.cfg.RatingMaxScore, d.logger).Run(ctx, src)
	if err != nil {
		return err
	}
	d.logger.Info("Import complete",
		zap.Int("total", result.Total),
		zap.Int64("imported", result.Imported),
		zap.Int64("skipped", result.Skipped),
	)
	return nil
}

func importSource(file, url string, d *deps) (feed.Source, error) {
	if file != "" && url != "" {
		return nil, ErrSourceRequired
	}
	if file != "" {
		return feed.FileSource{Path: file}, nil
	}
	if url == "" {
		url = d.cfg.FeedURL
	}
	if url == "" {
		return nil, ErrSourceRequired
	}
	return feed.NewHTTPClient(url, d.cfg.FeedAPIKey, time.Duration(d.cfg.FeedTimeoutSecs)*time.Second, d.logger)
}

func handleBackfill(ctx context.Context, _ *cli.Command, d *deps) error {
	fixed, err := d.repo.Restrooms.RebuildLocations(ctx)
	if err != nil {
		return err
	}
	total, err := d.repo.Restrooms.Count(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("Locations rebuilt", zap.Int64("fixed", fixed), zap.Int64("restrooms", total))
	return nil
}

func handleSeq(ctx context.Context, c *cli.Command, d *deps) error {
	name := c.Args().First()
	if name == "" {
		return ErrNameRequired
	}

	var (
		value int64
		err   error
	)
	if c.Bool("next") {
		value, err = d.repo.Counters.Next(ctx, name)
	} else {
		value, err = d.repo.Counters.Current(ctx, name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s %d\n", name, value)
	return nil
}
