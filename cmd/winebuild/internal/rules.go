package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/winebuild/internal/plan"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the fixup rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return plan.WriteRules(cmd.OutOrStdout(), plan.WineRules)
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
