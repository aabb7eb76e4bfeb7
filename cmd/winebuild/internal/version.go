package internal

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goplus/winebuild/internal/build"
	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/internal/vcs"
	"github.com/goplus/winebuild/mod/version"
)

var (
	versionVariant string
	versionDir     string
	versionList    bool
)

var versionCmd = &cobra.Command{
	Use:   "version [version]",
	Short: "Normalize a Wine version or describe a checkout",
	Long: `Version prints the normalized form of the given version and its tags.
Without an argument it describes the checkout of the variant in the
workspace, or the directory given by --dir. With --list it prints the
release versions available upstream.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVersion,
}

func init() {
	fs := versionCmd.Flags()
	fs.StringVar(&versionVariant, "variant", string(plan.Mainline), "Variant whose checkout to describe")
	fs.StringVar(&versionDir, "dir", "", "Checkout to describe")
	fs.BoolVar(&versionList, "list", false, "List upstream release versions")
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if versionList {
		c, err := loadConfig(cmd, nil)
		if err != nil {
			return usageError("load config", err)
		}
		remote := c.MainlineURL
		if remote == "" {
			remote = build.MainlineURL
		}
		tags, err := newVCS().Tags(ctx, remote)
		if err != nil {
			return failure("list versions", err)
		}
		for _, v := range vcs.ReleaseTags(tags) {
			fmt.Fprintln(out, v)
		}
		return nil
	}

	var raw string
	var d version.Describer
	if len(args) > 0 {
		raw = args[0]
	} else {
		dir := versionDir
		if dir == "" {
			variant, err := plan.ParseVariant(versionVariant)
			if err != nil {
				return usageError("version", err)
			}
			c, err := loadConfig(cmd, nil)
			if err != nil {
				return usageError("load config", err)
			}
			dir = plan.CheckoutDir(c.Workspace, variant)
		}
		d = vcs.Describer(newVCS(), dir)
	}
	v, _, err := version.Normalize(ctx, raw, d)
	if err != nil {
		return usageError("version", err)
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", v, v.Tag(), v.StagingTag())
	return nil
}
