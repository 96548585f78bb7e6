package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blueband-db/blueband/internal/blueband"
)

func newSearchCmd() *cobra.Command {
	var limit int
	var minScore float64
	var exact bool

	cmd := &cobra.Command{
		Use:   "search <collection> <query...>",
		Short: "Search a collection",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			req := blueband.SearchRequest{
				CollectionID: args[0],
				Query:        strings.Join(args[1:], " "),
				Limit:        limit,
				Exact:        exact,
			}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &minScore
			}

			response, err := service.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			if len(response.Matches) == 0 {
				fmt.Println("no matches")
				return nil
			}
			for i, m := range response.Matches {
				fmt.Printf("%2d. %.4f  %s / %s  %s\n", i+1, m.Score, m.DocumentID, m.ChunkID, m.DocumentTitle)
				if m.ChunkText != "" {
					fmt.Printf("    %s\n", truncateLine(m.ChunkText, 120))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum similarity score")
	cmd.Flags().BoolVar(&exact, "exact", false, "Force the exact search path")
	return cmd
}

func truncateLine(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
