package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spideyz0r/clipring/pkg/clipboard"
	"github.com/spideyz0r/clipring/pkg/cycle"
	"github.com/spideyz0r/clipring/pkg/search"
	"github.com/spideyz0r/clipring/pkg/storage"
)

func printEntries(w io.Writer, entries []*storage.Summary) {
	for _, e := range entries {
		fmt.Fprintf(w, "%6d │ %s\n", e.ID, search.FormatEntry(e))
	}
}

func newListCmd() *cobra.Command {
	var (
		archive bool
		limit   int
		kind    string
		app     string
	)

	cmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"search"},
		Short:   "List or search clipboard history",
		Long: `Lists history entries, pinned first and then newest first.

The query matches word prefixes; app:<name> and type:<text|image|files>
narrow the results, e.g. "clipring list app:firefox invoice".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			filters := storage.Filters{
				IncludeArchive: archive,
				Limit:          limit,
				SourceApp:      app,
			}
			if len(args) == 1 {
				filters.Search = args[0]
			}
			if kind != "" {
				k, ok := storage.ParseKind(kind)
				if !ok {
					return fmt.Errorf("unknown kind %q (supported: text, image, files)", kind)
				}
				filters.Kind = k
			}

			entries, err := search.WithFilters(cmd.Context(), s.db, filters)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&archive, "archive", false, "include archived entries")
	f.IntVarP(&limit, "limit", "n", 0, "maximum number of entries (at most one page)")
	f.StringVar(&kind, "kind", "", "only entries of this kind")
	f.StringVar(&app, "app", "", "only entries copied from this application")
	return cmd
}

func newPickCmd() *cobra.Command {
	var (
		archive   bool
		printOnly bool
	)

	cmd := &cobra.Command{
		Use:   "pick [filter]",
		Short: "Choose an entry with a fuzzy finder and copy it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			entries, err := search.All(cmd.Context(), s.db, archive)
			if err != nil {
				return err
			}

			var filter string
			if len(args) == 1 {
				filter = args[0]
			}
			selected, err := search.Pick(entries, filter)
			if errors.Is(err, search.ErrAborted) {
				return nil
			}
			if err != nil {
				return err
			}

			if printOnly {
				text := selected.Content
				if selected.Truncated {
					p, err := s.db.Payload(cmd.Context(), selected.ID)
					if err != nil {
						return err
					}
					text = p.Text
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			}
			return copyEntry(cmd, s, selected)
		},
	}

	cmd.Flags().BoolVar(&archive, "archive", false, "include archived entries")
	cmd.Flags().BoolVarP(&printOnly, "print", "p", false, "print the entry instead of copying it")
	return cmd
}

func copyEntry(cmd *cobra.Command, s *session, e *storage.Summary) error {
	backend := clipboard.New()
	defer backend.Close()

	if err := cycle.WriteEntry(cmd.Context(), s.db, backend, e); err != nil {
		return fmt.Errorf("failed to copy entry %d: %w", e.ID, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Copied entry %d: %s\n", e.ID, e.DisplayText(60))
	return nil
}

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Put a history entry back on the clipboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			e, err := s.db.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return copyEntry(cmd, s, e)
		},
	}
}

func newPinCmd(pin bool) *cobra.Command {
	use, short := "pin <id>", "Pin an entry so retention never removes it"
	if !pin {
		use, short = "unpin <id>", "Unpin an entry"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			return s.db.TogglePin(cmd.Context(), id, pin)
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entry (pinned entries are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			return s.db.Delete(cmd.Context(), id)
		},
	}
}

func reportDeleted(cmd *cobra.Command, n int64) {
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d entries\n", n)
}

func newDeleteSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-source <app>",
		Short: "Delete every unpinned entry copied from an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.db.DeleteBySource(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			reportDeleted(cmd, n)
			return nil
		},
	}
}

func newDeleteKindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-kind <text|image|files>",
		Short: "Delete every unpinned entry of one kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := storage.ParseKind(args[0])
			if !ok {
				return fmt.Errorf("unknown kind %q (supported: text, image, files)", args[0])
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.db.DeleteByKind(cmd.Context(), kind)
			if err != nil {
				return err
			}
			reportDeleted(cmd, n)
			return nil
		},
	}
}

func newDeleteLargerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-larger [size]",
		Short: "Delete unpinned entries larger than size (default 2 MiB)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := int64(storage.DefaultHeavyThreshold)
			if len(args) == 1 {
				n, err := humanize.ParseBytes(args[0])
				if err != nil {
					return fmt.Errorf("invalid size %q: %w", args[0], err)
				}
				limit = int64(n)
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.db.DeleteLarger(cmd.Context(), limit)
			if err != nil {
				return err
			}
			reportDeleted(cmd, n)
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the whole history, pinned and archived entries included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear history without --yes")
			}
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.db.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			reportDeleted(cmd, n)
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting everything")
	return cmd
}
