package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/catalogsync-backend/internal/app"
	"github.com/angelmondragon/catalogsync-backend/pkg/config"
	"github.com/angelmondragon/catalogsync-backend/pkg/db"
	"github.com/angelmondragon/catalogsync-backend/pkg/logger"
	"github.com/angelmondragon/catalogsync-backend/pkg/migrate"
)

const usage = `usage: migrate [-dir path] <command>

commands:
  up              apply every pending migration
  down            roll back the newest migration
  to <version>    move up or down to version
  status          list applied and pending migrations
  lint            check migration files
  create <name>   scaffold a timestamped migration in -dir

up, down, to and status read the embedded migrations unless -dir is set.`

func main() {
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	ctx = logg.WithField(ctx, "command", args[0])

	if err := run(ctx, logg, *dir, args); err != nil {
		app.Fatal(ctx, logg, "migrate", err)
	}
}

func run(ctx context.Context, logg *logger.Logger, dir string, args []string) error {
	source := migrate.Embedded()
	if dir != "" {
		source = os.DirFS(dir)
	}

	switch args[0] {
	case "lint":
		if err := migrate.Lint(source); err != nil {
			return err
		}
		logg.Info(ctx, "migrations lint clean")
		return nil
	case "create":
		if len(args) < 2 {
			return errors.New("create needs a name")
		}
		target := dir
		if target == "" {
			target = migrate.SourceDir
		}
		return migrate.Scaffold(target, args[1])
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()
	sqlDB, err := client.DB().DB()
	if err != nil {
		return err
	}
	migrator, err := migrate.NewMigrator(sqlDB, source)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		results, err := migrator.Up(ctx)
		report(results...)
		return err
	case "down":
		result, err := migrator.Down(ctx)
		if result != nil {
			report(result)
		}
		return err
	case "to":
		if len(args) < 2 {
			return errors.New("to needs a version")
		}
		version, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("version %q: %w", args[1], err)
		}
		results, err := migrator.To(ctx, version)
		report(results...)
		return err
	case "status":
		states, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range states {
			fmt.Printf("%-8s %d %s\n", s.State, s.Source.Version, s.Source.Path)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func report(results ...*goose.MigrationResult) {
	for _, r := range results {
		fmt.Println(r.String())
	}
}
