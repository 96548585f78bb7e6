package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blueband-db/blueband/internal/storage"
)

func newDocumentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Manage documents",
	}
	cmd.AddCommand(
		newDocumentAddCmd(),
		newDocumentListCmd(),
		newDocumentDeleteCmd(),
		newDocumentEmbedCmd(),
	)
	return cmd
}

func newDocumentAddCmd() *cobra.Command {
	var title, contentType string
	var doEmbed bool

	cmd := &cobra.Command{
		Use:   "add <collection> <file>",
		Short: "Add a document from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			if title == "" {
				title = args[1]
			}
			req := storage.AddDocumentRequest{
				CollectionID: args[0],
				Title:        title,
				Content:      string(content),
				ContentType:  storage.ParseContentType(contentType),
			}

			if doEmbed {
				result, err := service.AddDocumentAndEmbed(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(result)
			}

			meta, err := service.AddDocument(req)
			if err != nil {
				return err
			}
			return printJSON(meta)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVar(&contentType, "content-type", "", "Content type (plain_text, markdown, html, pdf)")
	cmd.Flags().BoolVar(&doEmbed, "embed", false, "Embed the document after adding it")
	return cmd
}

func newDocumentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <collection>",
		Short: "List documents in a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			docs, err := service.Store().ListDocuments(args[0])
			if err != nil {
				return err
			}
			for _, doc := range docs {
				embedded := " "
				if doc.IsEmbedded {
					embedded = "*"
				}
				fmt.Printf("%s %-22s chunks=%-4d %s\n", embedded, doc.ID, doc.TotalChunks, doc.Title)
			}
			return nil
		},
	}
}

func newDocumentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <collection> <document>",
		Short: "Delete a document with its chunks and vectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			if err := service.DeleteDocument(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("deleted document %s\n", args[1])
			return nil
		},
	}
}

func newDocumentEmbedCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "embed <collection> [document]",
		Short: "Embed a stored document, or all pending documents with --all",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, _, closer, err := openService()
			if err != nil {
				return err
			}
			defer closer()

			if all {
				result, err := service.BulkEmbedCollection(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(result)
			}

			if len(args) < 2 {
				return fmt.Errorf("document id required unless --all is set")
			}
			result, err := service.EmbedExistingDocument(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Embed every document that is not embedded yet")
	return cmd
}
