package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spideyz0r/clipring/pkg/config"
	"github.com/spideyz0r/clipring/pkg/storage"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "clipring setup")
			fmt.Fprintln(out, "==============")
			fmt.Fprintln(out)

			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			configPath, _ := cmd.Flags().GetString("config")
			if configPath == "" {
				configPath = config.DefaultPath()
			}

			for _, dir := range []string{filepath.Dir(configPath), filepath.Dir(cfg.Database.Path), cfg.Backup.Dir, cfg.Log.Dir} {
				if dir == "" {
					continue
				}
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}
			fmt.Fprintf(out, "✓ Created directory: %s\n", filepath.Dir(configPath))

			db, err := storage.Open(cfg.Database.Path)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			_ = db.Close()
			fmt.Fprintf(out, "✓ Initialized database: %s\n", cfg.Database.Path)

			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := cfg.Save(configPath); err != nil {
					return err
				}
				fmt.Fprintf(out, "✓ Created config file: %s\n", configPath)
			} else {
				fmt.Fprintf(out, "✓ Config file already exists: %s\n", configPath)
			}

			successMsg := fmt.Sprintf("SUCCESS! Run \"clipring run\" and cycle with %s / %s.",
				strings.ToUpper(cfg.Hotkeys.Next), strings.ToUpper(cfg.Hotkeys.Prev))
			fmt.Fprintln(out, "\n"+strings.Repeat("=", len(successMsg)))
			fmt.Fprintln(out, successMsg)
			fmt.Fprintln(out, strings.Repeat("=", len(successMsg))+"\n")
			return nil
		},
	}
}
