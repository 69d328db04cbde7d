package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spideyz0r/clipring/pkg/backup"
)

func newBackupCmd() *cobra.Command {
	var (
		dir       string
		noEncrypt bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write an encrypted backup of the history",
		Long: `Writes clipring-backup-<timestamp>.clipbak into the backup directory
and removes the oldest backups beyond backup.keep.

The password is read from CLIPRING_BACKUP_PASSWORD or prompted for.
Archived entries are not included.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{})
			if err != nil {
				return err
			}
			defer s.Close()

			if dir == "" {
				dir = s.cfg.Backup.Dir
			}
			var password string
			if !noEncrypt {
				if password, err = readPassword(s.v, true); err != nil {
					return err
				}
			}

			info, err := backup.Create(cmd.Context(), s.cfg.Database.Path, dir, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Backup written: %s (%s)\n", info.Path, backup.FormatSize(info.Size))

			if err := backup.Rotate(dir, s.cfg.Backup.Keep); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default backup.dir)")
	cmd.Flags().BoolVar(&noEncrypt, "no-encrypt", false, "write an unencrypted backup")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	var noEncrypt bool

	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the history with a backup",
		Long: `Replaces the live history with the contents of a backup. Stop
"clipring run" first. The current history is only replaced once the
backup has been fully decrypted and imported; the archive is untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, sessionOpts{})
			if err != nil {
				return err
			}
			defer s.Close()

			var password string
			if !noEncrypt {
				if password, err = readPassword(s.v, false); err != nil {
					return err
				}
			}

			err = backup.Restore(cmd.Context(), args[0], s.cfg.Database.Path, password)
			switch {
			case errors.Is(err, backup.ErrDecrypt):
				return fmt.Errorf("wrong password or damaged backup")
			case errors.Is(err, backup.ErrMalformed) && noEncrypt:
				return fmt.Errorf("%w (is the backup encrypted?)", err)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Restored %s into %s\n", args[0], s.cfg.Database.Path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noEncrypt, "no-encrypt", false, "the backup was written with --no-encrypt")
	return cmd
}

func newBackupsCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List backups, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, sessionOpts{})
			if err != nil {
				return err
			}
			defer s.Close()

			if dir == "" {
				dir = s.cfg.Backup.Dir
			}
			list, err := backup.List(dir)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", dir)
				return nil
			}
			for _, b := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s  %-16s  %s\n",
					b.Timestamp.Format("2006-01-02 15:04:05"),
					backup.FormatSize(b.Size),
					humanize.Time(b.Timestamp),
					b.Filename,
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default backup.dir)")
	return cmd
}
