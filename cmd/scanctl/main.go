// Package main is the entry point for scanctl, the operator CLI for the scan
// service: offline decisions, per-owner statistics and schema migration.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/example/wastesort/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "scanctl",
	Short:         "Operate the waste scan service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./scanctl.yaml or ~/.config/wastesort/scanctl.yaml)")
	rootCmd.PersistentFlags().String("database-dsn", "", "Postgres DSN")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	_ = viper.BindPFlag("database_dsn", rootCmd.PersistentFlags().Lookup("database-dsn"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(decideCmd, statsCmd, migrateCmd, categoriesCmd)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scanctl")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "wastesort"))
		}
	}

	viper.SetEnvPrefix("WASTESORT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() *zap.Logger {
	logger, err := logging.NewLogger(viper.GetString("log_level"))
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
