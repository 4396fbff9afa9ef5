package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillindex/quill/internal/background"
)

func newACLSyncCmd() *cobra.Command {
	var skipIfDone bool

	cmd := &cobra.Command{
		Use:   "aclsync",
		Short: "Reconcile document access lists with ownership state",
		Long: `Recompute every indexed document's allowed users from the current
connector-credential pair ownership: a document is public when any
owning pair is public, otherwise its allowed users are the union of
the owning pairs' users.

Safe to re-run at any time, including while indexing is in progress.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runACLSync(cmd, skipIfDone)
		},
	}

	cmd.Flags().BoolVar(&skipIfDone, "skip-if-done", false, "Skip when a completed pass is already recorded")

	return cmd
}

func runACLSync(cmd *cobra.Command, skipIfDone bool) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	err = background.SyncACL(cmd.Context(), app.index, app.meta, app.dynStore, background.ACLSyncOptions{
		SkipIfDone: skipIfDone,
	})
	if err != nil {
		return fmt.Errorf("access reconciliation failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Access reconciliation complete")
	return nil
}
