package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	devMode    bool
)

var rootCmd = &cobra.Command{
	Use:          "journey",
	Short:        "journey - member mission and stage tracking service",
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, listeners and scheduled sweeps",
	RunE:  runServe,
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect mission catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a catalog file (defaults to journey.catalog_path)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCatalogValidate,
}

var missionsCmd = &cobra.Command{
	Use:   "missions [file]",
	Short: "List the missions and stages of the configured catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runMissions,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "Path to config.json")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Development logging and gin debug mode")
	catalogCmd.AddCommand(catalogValidateCmd)
	rootCmd.AddCommand(serveCmd, catalogCmd, missionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
