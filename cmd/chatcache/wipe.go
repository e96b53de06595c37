package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	wipeCmd.Flags().Bool("yes", false, "do not ask for confirmation")
	rootCmd.AddCommand(wipeCmd)
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every cached entity and media file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to wipe without --yes")
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		if err := a.Wipe(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cache wiped.")
		return nil
	},
}
