// Command migrate applies or rolls back the Postgres draw cache schema.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/kino/internal/infra/config"
	"github.com/coachpo/kino/internal/infra/logging"
	"github.com/coachpo/kino/internal/infra/persistence/migrations"
)

const defaultTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		dsn     = fs.String("database", "", fmt.Sprintf("PostgreSQL DSN (default: $%s)", config.EnvDatabaseDSN))
		dir     = fs.String("path", "", "Directory containing SQL migrations (default: embedded)")
		timeout = fs.Duration("timeout", defaultTimeout, "Maximum time to wait for database connectivity")
		quiet   = fs.Bool("quiet", false, "Suppress informational logs")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*dsn) == "" {
		*dsn = os.Getenv(config.EnvDatabaseDSN)
	}
	if strings.TrimSpace(*dsn) == "" {
		return errors.New("-database flag or " + config.EnvDatabaseDSN + " is required")
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("command required (up|down|versions)")
	}

	level := logrus.InfoLevel.String()
	if *quiet {
		level = logrus.WarnLevel.String()
	}
	logger, err := logging.New(logging.Config{Level: level, Output: stderr})
	if err != nil {
		return err
	}
	opts := migrations.Options{Dir: *dir, Logger: logger.WithField("component", "migrate")}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch rest[0] {
	case "up":
		return migrations.Apply(ctx, *dsn, opts)
	case "down":
		steps := 1
		if len(rest) > 1 {
			n, err := strconv.Atoi(rest[1])
			if err != nil {
				return fmt.Errorf("invalid down steps %q: %w", rest[1], err)
			}
			steps = n
		}
		return migrations.Rollback(ctx, *dsn, steps, opts)
	case "versions":
		versions, err := migrations.EmbeddedVersions()
		if err != nil {
			return err
		}
		for _, v := range versions {
			fmt.Fprintln(stderr, v)
		}
		return nil
	default:
		return fmt.Errorf("unknown command %q (expected up, down or versions)", rest[0])
	}
}
