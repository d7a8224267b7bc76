package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sadopc/tabula/internal/config"
	"github.com/sadopc/tabula/internal/render"
)

func newConfigCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or inspect the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Write the default configuration, with any --adapter and --dsn flags
applied, to --config or to the default location.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := o.configFile()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			cfg := config.DefaultConfig()
			o.override(cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if o.configPath != "" {
				err = cfg.Save(path)
			} else {
				err = cfg.SaveDefault()
			}
			if err != nil {
				return err
			}
			out := render.New(cmd.OutOrStdout(), render.Get(cfg.Theme), render.AsJSON(o.json))
			return out.Done("wrote "+path, map[string]string{"path": path})
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective storage settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			out := render.New(cmd.OutOrStdout(), render.Get(cfg.Theme), render.AsJSON(o.json))
			location := cfg.Storage.DisplayString()
			return out.Done(location, map[string]string{
				"adapter":      cfg.Storage.Adapter,
				"storage":      location,
				"drop_columns": cfg.Storage.DropColumns,
				"log_level":    cfg.Log.Level,
				"theme":        cfg.Theme,
			})
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}

// configFile returns the config path in effect: --config, or
// ConfigDir()/config.yaml.
func (o *options) configFile() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
