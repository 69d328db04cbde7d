// clipring: clipboard history with hotkey cycling.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	runMain(func() {
		if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
			os.Exit(1)
		}
	})
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipring",
		Short: "Clipboard history with hotkey cycling",
		Long: `clipring records every clipboard change into a searchable local
history and lets you cycle through recent entries with global hotkeys
(Alt+W older, Alt+S newer by default). Release the modifier to paste.

Run "clipring run" to start the watcher. The other commands work on the
same history store and are safe to use while it runs.

Configuration lives in ~/.clipring/config.yaml ("clipring init" writes the
defaults). Every setting can be overridden with CLIPRING_<SECTION>_<KEY>
environment variables, e.g. CLIPRING_RETENTION_MAX_ITEMS=500.

Precedence (lowest → highest): defaults → config file → CLIPRING_* env vars → flags`,
		SilenceUsage: true,
	}

	addGlobalFlags(root)

	root.AddCommand(
		newRunCmd(),
		newListCmd(),
		newPickCmd(),
		newCopyCmd(),
		newPinCmd(true),
		newPinCmd(false),
		newDeleteCmd(),
		newDeleteSourceCmd(),
		newDeleteKindCmd(),
		newDeleteLargerCmd(),
		newClearCmd(),
		newTrimCmd(),
		newArchiveCmd(),
		newUnarchiveCmd(),
		newMaintainCmd(),
		newBackupCmd(),
		newRestoreCmd(),
		newBackupsCmd(),
		newStatsCmd(),
		newExportCmd(),
		newInitCmd(),
		newVersionCmd(),
	)

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipring %s\n", Version)
		},
	}
}
