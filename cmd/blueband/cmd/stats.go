package cmd

import (
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage and cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			store := service.Store()
			return printJSON(map[string]any{
				"storage": store.GetStorageStats(),
				"memory":  store.GetMemoryStats(),
				"cache":   service.CacheStats(),
			})
		},
	}
}
