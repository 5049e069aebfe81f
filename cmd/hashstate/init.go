package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-go/hashstate/internal/config"
	"github.com/vango-go/hashstate/internal/errors"
)

func initCmd() *cobra.Command {
	var (
		format string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a starter config file",
		Long: `Write a starter config file with two example bindings.

Formats:
  json   hashstate.json (default)
  toml   hashstate.toml
  yaml   hashstate.yaml

Examples:
  hashstate init
  hashstate init deploy --format=toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path, err := runInit(dir, format, force)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", path)
			info(cmd.OutOrStdout(), "Start the bridge with: hashstate serve -c %s", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Config format (json, toml, yaml)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runInit(dir, format string, force bool) (string, error) {
	var name string
	switch format {
	case "json":
		name = "hashstate.json"
	case "toml":
		name = "hashstate.toml"
	case "yaml", "yml":
		name = "hashstate.yaml"
	default:
		return "", errors.New("H103").WithDetail("Unknown format " + format)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.New("H102").Wrap(err)
	}
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil && !force {
		return "", errors.Newf(errors.CategoryCLI, "%s already exists", path).
			WithSuggestion("Pass --force to overwrite it")
	}

	cfg := starterConfig()
	if err := cfg.SaveTo(path); err != nil {
		return "", err
	}
	return path, nil
}

func starterConfig() *config.Config {
	cfg := config.New()
	cfg.Bindings = []config.BindingConfig{
		{Key: "page", Codec: config.CodecString, Default: "1"},
		{Key: "q", Codec: config.CodecString, Debounce: "300ms", Mirror: true},
	}
	return cfg
}
