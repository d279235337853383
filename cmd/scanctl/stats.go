package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/wastesort/internal/category"
	"github.com/example/wastesort/internal/repository"
	"github.com/example/wastesort/internal/stats"
)

var statsCmd = &cobra.Command{
	Use:   "stats <owner-id>",
	Short: "Print agreement and accuracy statistics for one owner",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}

		scans, err := repo.ListScansByOwner(ctx, args[0])
		if err != nil {
			return err
		}
		records := make([]stats.Record, len(scans))
		for i, scan := range scans {
			records[i] = scan.StatsRecord()
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats.Summarize(records))
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		repo, err := openRepository(ctx)
		if err != nil {
			return err
		}
		if err := repo.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations complete")
		return nil
	},
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the canonical waste categories",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, c := range category.All() {
			fmt.Fprintln(cmd.OutOrStdout(), c)
		}
	},
}

func openRepository(ctx context.Context) (*repository.ScanRepository, error) {
	dsn := viper.GetString("database_dsn")
	if dsn == "" {
		return nil, errors.New("database DSN is required (--database-dsn or WASTESORT_DATABASE_DSN)")
	}
	db, err := repository.OpenPostgres(ctx, dsn, gormlogger.Silent)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return repository.NewScanRepository(db, newLogger()), nil
}
