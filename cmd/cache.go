package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the resource cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "size",
		Short: "Report the total size of the resource cache",
		RunE: func(c *cobra.Command, _ []string) error {
			_, api, _, err := setup(c)
			if err != nil {
				return err
			}
			size, err := api.CacheSize()
			if err != nil {
				return err
			}
			fmt.Printf("%.2f MB\n", float64(size)/(1024*1024))
			return nil
		},
	})

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete cache entries older than the retention window",
		RunE: func(c *cobra.Command, _ []string) error {
			ctx, api, cfg, err := setup(c)
			if err != nil {
				return err
			}
			maxAge := cfg.Resources.CleanupMaxAge
			if hours, _ := c.Flags().GetInt("max-age-hours"); hours > 0 {
				maxAge = time.Duration(hours) * time.Hour
			}
			deleted, err := api.CleanupCache(ctx, maxAge)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d cache entries\n", deleted)
			return nil
		},
	}
	cleanupCmd.Flags().Int("max-age-hours", 0, "delete entries older than this many hours")
	cmd.AddCommand(cleanupCmd)

	return cmd
}
