package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"deepdive/api/internal/config"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

type flags struct {
	LogLevel  string
	LogFormat string
	Config    config.Config
}

func main() {
	f := &flags{}
	if err := newRootCmd(f).Run(context.Background(), os.Args); err != nil {
		log.Error().Err(err).Msg("exiting")
		os.Exit(1)
	}
}

// newRootCmd builds the CLI. Logging is configured from the flags only;
// config.Load covers everything else.
func newRootCmd(f *flags) *cli.Command {
	cmd := &cli.Command{
		Name:    "deepdive-api",
		Usage:   "Serve topic content, progress and settings for the deep dive viewer",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("DEEPDIVE_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log output (json, console)",
				Sources:     cli.EnvVars("DEEPDIVE_LOG_FORMAT"),
				Value:       "json",
				Destination: &f.LogFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := setupLogger(f.LogLevel, f.LogFormat, os.Stderr); err != nil {
				return ctx, err
			}
			cfg, err := config.Load()
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			f.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			newServeCmd(f),
			newMigrateCmd(f),
			newReindexCmd(f),
			newSeedCmd(f),
			newHashPasswordCmd(),
		},
	}
	// Serve when no subcommand is given.
	cmd.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'deepdive-api --help' for usage", c.Args().First())
		}
		return serve(ctx, f.Config)
	}
	return cmd
}

func setupLogger(level, format string, out io.Writer) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	output := out
	switch format {
	case "json", "":
	case "console":
		output = zerolog.ConsoleWriter{Out: out}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(output).Level(parsedLevel).With().Timestamp().Logger()
	return nil
}
