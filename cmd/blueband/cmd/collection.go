package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blueband-db/blueband/internal/storage"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections",
	}
	cmd.AddCommand(
		newCollectionCreateCmd(),
		newCollectionListCmd(),
		newCollectionDeleteCmd(),
	)
	return cmd
}

func newCollectionCreateCmd() *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create <id>",
		Short: "Create a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cfg, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			if name == "" {
				name = args[0]
			}
			settings := cfg.CollectionDefaults()
			col, err := service.Store().CreateCollection(storage.CreateCollectionRequest{
				ID:          args[0],
				Name:        name,
				Description: description,
				Settings:    &settings,
			}, principalFlag)
			if err != nil {
				return err
			}
			return printJSON(col)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name (defaults to the id)")
	cmd.Flags().StringVar(&description, "description", "", "Collection description")
	return cmd
}

func newCollectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections with stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			for _, col := range service.Store().ListCollectionsWithStats() {
				fmt.Printf("%-24s documents=%-5d vectors=%-6d %s\n",
					col.Collection.ID, col.DocumentCount, col.VectorCount, col.Collection.Name)
			}
			return nil
		},
	}
}

func newCollectionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a collection and everything in it (genesis admin only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			if err := service.DeleteCollection(args[0], principalFlag); err != nil {
				return err
			}
			fmt.Printf("deleted collection %s\n", args[0])
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
