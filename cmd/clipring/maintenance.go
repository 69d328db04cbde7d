package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTrimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trim",
		Short: "Apply the retention limits now",
		Long: `Deletes the oldest unpinned entries until retention.max_items and
retention.max_size are satisfied. Pinned entries are never removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			var total int64
			if maxItems := s.cfg.Retention.MaxItems; maxItems > 0 {
				n, err := s.db.TrimByCount(cmd.Context(), maxItems)
				if err != nil {
					return err
				}
				total += n
			}
			maxBytes, err := s.cfg.MaxSizeBytes()
			if err != nil {
				return err
			}
			if maxBytes > 0 {
				n, err := s.db.TrimBySize(cmd.Context(), maxBytes)
				if err != nil {
					return err
				}
				total += n
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trimmed %d entries\n", total)
			return nil
		},
	}
}

func newArchiveCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move old unpinned entries to the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			if !cmd.Flags().Changed("days") {
				days = s.cfg.Retention.ArchiveAfterDays
			}
			n, err := s.db.ArchiveOlderThan(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %d entries older than %d days\n", n, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "archive entries older than this many days (default retention.archive_after_days)")
	return cmd
}

func newUnarchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unarchive <id>",
		Short: "Move an archived entry back into the live history",
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

			return s.db.Unarchive(cmd.Context(), id)
		},
	}
}

func newMaintainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintain",
		Short: "Optimize the store and write a recovery snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{store: true})
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.db.Maintain(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Maintenance complete")
			return nil
		},
	}
}
