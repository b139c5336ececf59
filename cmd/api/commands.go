package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"deepdive/api/db"
	"deepdive/api/internal/authpw"
	"deepdive/api/internal/catalog"
	"deepdive/api/internal/config"
	"deepdive/api/internal/content"
	"deepdive/api/internal/search"
	"deepdive/api/internal/store"
)

func newServeCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API (default)",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, f.Config)
		},
	}
}

func newMigrateCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit",
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := store.Open(ctx, f.Config.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()
			_, err = migrate(ctx, conn, f.Config)
			return err
		},
	}
}

func newReindexCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Rebuild the Meilisearch topic index from the content log",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := f.Config
			if strings.TrimSpace(cfg.MeiliURL) == "" {
				return fmt.Errorf("MEILI_URL is not set")
			}
			conn, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer conn.Close()

			cat, err := catalog.Load()
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log.Logger)
			defer meili.Close()
			if !meili.Healthy() {
				return fmt.Errorf("meilisearch at %s is not reachable", cfg.MeiliURL)
			}

			contentLog := store.NewContentLog(conn)
			svc := search.NewService(meili, search.NewFallback(cat, contentLog), cat, log.Logger)
			n := svc.Reindex(ctx, contentLog)
			fmt.Fprintf(c.Root().Writer, "indexed %d topics\n", n)
			return nil
		},
	}
}

func newSeedCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:      "seed",
		Usage:     "Load default topic content from a directory when no content exists yet",
		UsageText: "deepdive-api seed --dir ./content   (files named <topic-id>.md or <topic-id>.txt)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "directory of default topic files",
				Sources:  cli.EnvVars("DEEPDIVE_SEED_DIR"),
				Required: true,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cat, err := catalog.Load()
			if err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
			defaults, err := loadSeedFiles(os.DirFS(c.String("dir")), cat)
			if err != nil {
				return err
			}

			st, closeStorage, err := openStorage(ctx, f.Config)
			if err != nil {
				return err
			}
			defer closeStorage()

			n, err := content.Seed(ctx, newResolver(f.Config, st), st.contentLog, defaults)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.Root().Writer, "seeded %d topics\n", n)
			return nil
		},
	}
}

// loadSeedFiles reads <topic-id>.md and <topic-id>.txt files from the top
// level of fsys. Every file must name a catalog topic and hold text.
func loadSeedFiles(fsys fs.FS, cat *catalog.Catalog) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read seed directory: %w", err)
	}

	defaults := make(map[string]string, len(entries))
	var errs *multierror.Error
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := path.Ext(name)
		if ext != ".md" && ext != ".txt" {
			log.Debug().Str("file", name).Msg("skipping non-text seed file")
			continue
		}
		topicID := strings.TrimSuffix(name, ext)
		if !cat.HasTopic(topicID) {
			errs = multierror.Append(errs, fmt.Errorf("%s: unknown topic %q", name, topicID))
			continue
		}
		if _, dup := defaults[topicID]; dup {
			errs = multierror.Append(errs, fmt.Errorf("%s: topic %q given twice", name, topicID))
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("read %s: %w", name, err))
			continue
		}
		if err := content.ValidateText(name, body); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		defaults[topicID] = string(body)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return defaults, nil
}

func newHashPasswordCmd() *cli.Command {
	return &cli.Command{
		Name:      "hash-password",
		Usage:     "Print a bcrypt hash for DEEPDIVE_VIEWER_PASSWORD_HASH or DEEPDIVE_ADMIN_PASSWORD_HASH",
		UsageText: "deepdive-api hash-password < password.txt",
		Action: func(ctx context.Context, c *cli.Command) error {
			password := c.Args().First()
			if password == "" {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			hash, err := authpw.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.Root().Writer, hash)
			return nil
		},
	}
}

// migrate applies the embedded migrations, or those in DEEPDIVE_MIGRATIONS_DIR when set.
func migrate(ctx context.Context, conn *sql.DB, cfg config.Config) (int, error) {
	var (
		fsys fs.FS = db.Migrations
		dir        = "migrations"
	)
	if cfg.MigrationsDir != "" {
		fsys, dir = os.DirFS(cfg.MigrationsDir), "."
	}
	applied, err := store.ApplyMigrations(ctx, conn, fsys, dir, log.Logger)
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	log.Info().Int("applied", applied).Msg("migrations up to date")
	return applied, nil
}
