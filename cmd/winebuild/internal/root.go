package internal

import (
	"context"

	"github.com/gookit/color"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var (
	configFile string
	workspace  string
	verbose    bool
	noColor    bool
)

var rootCmd = &cobra.Command{
	Use:   "winebuild",
	Short: "winebuild builds Wine with the fixups its version needs",
	Long: `winebuild resolves which upstream commits, configure flags and environment
a given Wine version needs to build on today's toolchains, then checks out,
patches, configures and installs it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetOutputLevel(log.Ldebug)
		} else {
			log.SetOutputLevel(log.Linfo)
		}
		if noColor {
			color.Disable()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file (.yaml, .yml or .hcl)")
	pf.StringVarP(&workspace, "workspace", "w", "", "Workspace holding sources, build trees and install roots")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(cmd.CommandPath(), err)
	})
}

// Execute adds all child commands to the root command and runs it.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
