// Command migrate applies the embedded session schema migrations.
//
//	migrate [-dsn URL] up|down|version|steps N|force N
//
// Without -dsn the connection comes from config.toml and MATCHFLOW_DB_*.
package main

import (
	"embed"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/JaimeStill/matchflow/internal/config"
)

//go:embed migrations/*.sql
var migrations embed.FS

type command struct {
	name string
	n    int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("missing command")
	}

	cmd := command{name: args[0]}
	switch cmd.name {
	case "up", "down", "version":
		if len(args) != 1 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	case "steps", "force":
		if len(args) != 2 {
			return command{}, fmt.Errorf("%s requires a number", cmd.name)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return command{}, fmt.Errorf("%s: %w", cmd.name, err)
		}
		if cmd.name == "steps" && n == 0 {
			return command{}, errors.New("steps must be non-zero")
		}
		if cmd.name == "force" && n < -1 {
			return command{}, errors.New("force version must be -1 or greater")
		}
		cmd.n = n
	default:
		return command{}, fmt.Errorf("unknown command: %s", cmd.name)
	}
	return cmd, nil
}

func (c command) run(m *migrate.Migrate, logger *slog.Logger) error {
	var err error
	switch c.name {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		err = m.Steps(c.n)
	case "force":
		err = m.Force(c.n)
	case "version":
		v, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		logger.Info("current version", "version", v, "dirty", dirty)
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("schema already current")
		return nil
	}
	if err != nil {
		return err
	}

	v, dirty, _ := m.Version()
	logger.Info("migration complete", "command", c.name, "version", v, "dirty", dirty)
	return nil
}

func resolveURL(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}
	db, err := config.LoadDatabase()
	if err != nil {
		return "", err
	}
	return db.URL(), nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("system", "migrate")

	dsn := flag.String("dsn", "", "postgres:// connection URL (default from config)")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-dsn URL] up|down|version|steps N|force N")
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd, err := parseCommand(flag.Args())
	if err != nil {
		logger.Error("invalid arguments", "error", err)
		flag.Usage()
		os.Exit(2)
	}

	target, err := resolveURL(*dsn)
	if err != nil {
		logger.Error("resolve database", "error", err)
		os.Exit(1)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		logger.Error("migration source", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, target)
	if err != nil {
		logger.Error("connect", "error", err)
		os.Exit(1)
	}
	defer m.Close()

	if err := cmd.run(m, logger); err != nil {
		logger.Error("migration failed", "command", cmd.name, "error", err)
		m.Close()
		os.Exit(1)
	}
}
