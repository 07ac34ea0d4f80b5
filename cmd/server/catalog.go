package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"go-journey/internal/config"
	"go-journey/internal/mission"
)

// loadCatalog reads path, or returns the built-in catalog when path is empty
func loadCatalog(path string) (*mission.Catalog, error) {
	if path == "" {
		return mission.Default(), nil
	}
	return mission.LoadFile(path)
}

// catalogPath resolves the catalog file from args or the config file
func catalogPath(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	return cfg.Journey.CatalogPath, nil
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	path, err := catalogPath(args)
	if err != nil {
		return err
	}
	c, err := loadCatalog(path)
	if err != nil {
		return err
	}
	source := path
	if source == "" {
		source = "built-in catalog"
	}
	stages := 0
	for _, m := range c.ListMissions() {
		stages += len(m.Stages)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d missions, %d stages)\n", source, len(c.ListMissions()), stages)
	return nil
}

func runMissions(cmd *cobra.Command, args []string) error {
	path, err := catalogPath(args)
	if err != nil {
		return err
	}
	c, err := loadCatalog(path)
	if err != nil {
		return err
	}
	printMissions(cmd.OutOrStdout(), c)
	return nil
}

func printMissions(w io.Writer, c *mission.Catalog) {
	for _, m := range c.ListMissions() {
		fmt.Fprintf(w, "%s  %-11s %-9s %s\n", m.ID, m.Vertical, m.Kind, m.Title)
		labels := make([]string, len(m.Stages))
		for i, s := range m.Stages {
			labels[i] = s.Label
		}
		fmt.Fprintf(w, "        %s\n", strings.Join(labels, " -> "))
	}
}
