package main

import (
	"github.com/spf13/cobra"

	"github.com/nordkart/geoharvest/pkg/logging"
)

var (
	cfgFile   string
	logLevel  string
	logPretty bool
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "geoharvest",
	Short: "Bulk ingestion for paginated geospatial feature services",
	Long: `geoharvest fetches complete feature collections from ArcGIS-style
feature services, validates their spatial reference and geometry, and
writes the result as GeoJSON or Parquet.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Setup(logging.Config{
			Level:  logging.LogLevel(logLevel),
			Pretty: logPretty,
		})
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./geoharvest.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable console logging")
}
