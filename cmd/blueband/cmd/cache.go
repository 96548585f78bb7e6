package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Vector cache administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()
			return printJSON(service.CacheStats())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()
			service.ClearCache()
			fmt.Println("cache cleared")
			return nil
		},
	})

	return cmd
}
