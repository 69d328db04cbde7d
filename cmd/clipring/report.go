package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spideyz0r/clipring/pkg/export"
	"github.com/spideyz0r/clipring/pkg/stats"
	"github.com/spideyz0r/clipring/pkg/storage"
)

func newStatsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show history statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := stats.Collect(cmd.Context(), s.db)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), st.Format(top))
			return nil
		},
	}

	cmd.Flags().IntVar(&top, "top", 10, "number of source applications to show")
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		format string
		output string
		query  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export history as text, JSON or CSV",
		Long: `Exports the live history. Images are exported by their caption.
For a complete, restorable copy use "clipring backup".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				w = file
			}

			return export.Export(cmd.Context(), s.db, w, export.Options{
				Format:  f,
				Filters: storage.Filters{Search: query, Limit: limit},
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "text", "export format (text, json, csv)")
	flags.StringVarP(&output, "output", "o", "-", "output file (- for stdout)")
	flags.StringVar(&query, "search", "", "only entries matching this query (one page)")
	flags.IntVar(&limit, "limit", 0, "limit number of results (one page at most)")
	return cmd
}
