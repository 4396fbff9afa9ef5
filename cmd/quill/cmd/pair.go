package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quillindex/quill/internal/background"
)

func newPairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Manage connector-credential pairs",
	}

	cmd.AddCommand(newPairDeleteCmd())
	cmd.AddCommand(newPairDisableCmd())

	return cmd
}

func newPairDeleteCmd() *cobra.Command {
	var connectorID, credentialID int64

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a pair and everything it exclusively owns",
		Long: `Delete a connector-credential pair.

Documents only this pair owns are removed from the index entirely;
documents shared with other pairs survive with recomputed access.
Deletion is refused while an indexing attempt for the pair is in
flight; disable the pair first to stop an ongoing run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			result, err := background.DeletePair(cmd.Context(), app.index, app.meta, connectorID, credentialID, nil)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted pair (%d, %d): %d documents removed, %d shared documents released\n",
				connectorID, credentialID, result.DocumentsDeleted, result.EdgesDeleted)
			return nil
		},
	}

	cmd.Flags().Int64Var(&connectorID, "connector-id", 0, "Connector identity")
	cmd.Flags().Int64Var(&credentialID, "credential-id", 0, "Credential identity")
	_ = cmd.MarkFlagRequired("connector-id")
	_ = cmd.MarkFlagRequired("credential-id")

	return cmd
}

func newPairDisableCmd() *cobra.Command {
	var connectorID, credentialID int64
	var enable bool

	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable a pair, stopping its indexing runs between batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.meta.SetPairDisabled(cmd.Context(), connectorID, credentialID, !enable); err != nil {
				return err
			}

			state := "disabled"
			if enable {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pair (%d, %d) %s\n", connectorID, credentialID, state)
			return nil
		},
	}

	cmd.Flags().Int64Var(&connectorID, "connector-id", 0, "Connector identity")
	cmd.Flags().Int64Var(&credentialID, "credential-id", 0, "Credential identity")
	cmd.Flags().BoolVar(&enable, "undo", false, "Re-enable the pair instead")
	_ = cmd.MarkFlagRequired("connector-id")
	_ = cmd.MarkFlagRequired("credential-id")

	return cmd
}
