package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lizardjazz1/morning-quiz-bot/internal/config"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

func newRootCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:           "migrator",
		Short:         "Apply the quiz_scores Postgres migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "db/migrations", "directory containing migration files")

	cmd.AddCommand(
		gooseCmd("up", "Apply all pending migrations", &dir, goose.Up),
		gooseCmd("down", "Roll back the latest migration", &dir, goose.Down),
		gooseCmd("status", "Print the status of every migration", &dir, goose.Status),
	)
	return cmd
}

func gooseCmd(use, short string, dir *string, run func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, migrationDir, err := open(*dir)
			if err != nil {
				return err
			}
			defer db.Close()

			goose.SetTableName("goose_db_version")
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}
			if err := run(db, migrationDir); err != nil {
				return fmt.Errorf("goose %s: %w", use, err)
			}
			log.Info().Str("command", use).Msg("migration command finished")
			return nil
		},
	}
}

// open reads PG_* variables, resolves the migration directory and connects.
func open(dir string) (*sql.DB, string, error) {
	var pg config.Postgres
	if err := env.Parse(&pg); err != nil {
		return nil, "", fmt.Errorf("parse postgres config: %w", err)
	}
	if pg.Host == "" {
		pg.Host = "localhost"
	}
	if pg.User == "" || pg.Database == "" {
		return nil, "", fmt.Errorf("PG_USER and PG_DATABASE are required")
	}

	migrationDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, "", fmt.Errorf("resolve migration directory: %w", err)
	}
	if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("migration directory %s does not exist", migrationDir)
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Str("host", pg.Host).
		Int("port", pg.Port).
		Str("database", pg.Database).
		Str("migration_dir", migrationDir).
		Msg("connected to database")
	return db, migrationDir, nil
}
