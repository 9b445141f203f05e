package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// newCacheCmd creates the cache command for managing the artifact cache.
func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the artifact cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the cache directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			printKeyValue("backend", cfg.Cache.Backend)
			if cfg.Cache.Backend == "redis" {
				printKeyValue("redis", cfg.Cache.RedisAddr)
			} else {
				printKeyValue("dir", cfg.Cache.Dir)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete all cached reports and artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Cache.Backend != "file" && cfg.Cache.Backend != "" {
				printWarning("cache clear only supports the file backend")
				return nil
			}
			if err := os.RemoveAll(cfg.Cache.Dir); err != nil {
				return err
			}
			printSuccess("Cache cleared")
			printFile(cfg.Cache.Dir)
			return nil
		},
	})

	return cmd
}
