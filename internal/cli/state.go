package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var stateResetYes bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset the persisted monitor state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display every persisted state key",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().StateShow(cmd.Context())
	},
}

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the persisted state",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !stateResetYes {
			return errors.New("refusing to clear state without --yes")
		}
		return getApp().StateReset(cmd.Context())
	},
}

func init() {
	stateResetCmd.Flags().BoolVar(&stateResetYes, "yes", false, "Confirm clearing the persisted state")

	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateResetCmd)
}
