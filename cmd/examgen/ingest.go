package main

import (
	"errors"
	"fmt"

	"examgen"
	"examgen/app"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		input      string
		collection string
		subject    string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a JSONL question bank into the similarity index",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rows, err := examgen.ReadBankJSONL(input)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if collection != "" {
				cfg.Index.Collection = collection
			}

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, app.Needs{Index: true})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close(ctx)) }()

			docs := examgen.DocumentsFromRows(rows, subject)
			n, err := examgen.Ingest(ctx, a.Index, docs, examgen.IngestChunkSize)
			if err != nil {
				return err
			}

			where := cfg.Index.Path
			if cfg.Index.Backend == examgen.IndexQdrant {
				where = fmt.Sprintf("%s:%d", cfg.Index.QdrantHost, cfg.Index.QdrantPort)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ingested %d items into collection '%s' at %s\n", n, cfg.Index.Collection, where)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "Input JSONL file (unified schema)")
	cmd.Flags().StringVar(&collection, "collection", "", "Index collection name (default from config)")
	cmd.Flags().StringVar(&subject, "subject", "", "Subject tag stored on every row, overriding the file")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
