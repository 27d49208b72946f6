package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Soflution1/McpHub/internal/config"
)

// resetCmd deletes the persistent schema cache, forcing every configured
// server to be rediscovered on next spawn (spec §6: "reset = delete cache
// files"). It never touches the config file itself.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the persistent schema cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("config")
		if path == "" {
			path = config.DefaultConfigPath()
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}

		cachePath := filepath.Join(cfg.Settings.CacheDir, "cache.json")
		if err := os.Remove(cachePath); err != nil && !os.IsNotExist(err) {
			return err
		}
		fmt.Printf("removed %s\n", cachePath)
		return nil
	},
}
