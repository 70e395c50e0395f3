// Package main provides the entry point for the persona transformer service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "transformer",
	Short: "Persona-aware content transformer",
	Long: `Transforms structured source content into persona-specific outputs (slides, threads,
summaries, blog posts, infographic copy) with quality scoring and human approval.

Configuration comes from TRANSFORMER_* environment variables, optionally overlaid by a
JSON file passed with --config.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file overlaying the environment")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
