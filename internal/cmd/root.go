// Package cmd implements the tilecached command-line interface: serve,
// seed, export, render, and inspect. Grounded on the teacher's
// internal/cmd/root.go (cobra+viper wiring, persistent flags, slog
// logger built from a configurable level).
package cmd

import (
	"fmt"
	"os"
	"strings"

	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:   "tilecached",
	Short: "A map tile cache and rendering service",
	Long: `tilecached caches, renders, and serves web map tiles.

It stores tiles in a directory, a single-file archive, or a relational
database, forwards cache misses to an origin, and can rasterize vector
styles with Mapnik.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if logger == nil {
		initLogging()
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")

	mustBindPersistent("log-level", "log-level")
	mustBindPersistent("verbose", "verbose")
}

func mustBindPersistent(key, name string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("cmd: failed to bind flag %q: %v", name, err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TILECACHED")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func initLogging() {
	levelStr := strings.ToLower(viper.GetString("log-level"))
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "err":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "unknown log level %q, defaulting to info\n", levelStr)
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}
