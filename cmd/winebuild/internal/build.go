package internal

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/goplus/winebuild/internal/build"
	"github.com/goplus/winebuild/internal/plan"
)

type executor interface {
	Execute(ctx context.Context, p *plan.BuildPlan) (string, error)
}

var newExecutor = func(opts build.Options, out io.Writer) executor {
	return build.NewExecutor(newVCS(), opts, build.WithOutput(out))
}

var (
	buildFlags    resolveFlags
	buildClean    bool
	buildNoConfig bool
	buildNoReset  bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Check out, patch, build and install Wine",
	Long: `Build resolves the plan for the requested version, prepares the source
trees, applies the fixup commits and builds and installs every leg.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildFlags.register(buildCmd)
	fs := buildCmd.Flags()
	fs.BoolVar(&buildClean, "clean", false, "Remove the build trees first")
	fs.BoolVar(&buildNoConfig, "no-configure", false, "Reuse the existing configuration")
	fs.BoolVar(&buildNoReset, "no-reset-source", false, "Keep local changes in the source trees")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	c, p, err := resolve(cmd, &buildFlags)
	if err != nil {
		return err
	}
	e := newExecutor(build.Options{
		Workspace:     c.Workspace,
		MainlineURL:   c.MainlineURL,
		StagingURL:    c.StagingURL,
		Clean:         buildClean,
		NoConfigure:   buildNoConfig,
		NoResetSource: buildNoReset,
		ForceAutoconf: c.ForceAutoconf,
	}, cmd.ErrOrStderr())
	runID, err := e.Execute(cmd.Context(), p)
	if err != nil {
		return failure(fmt.Sprintf("build %s (run %s)", describePlan(p), runID), err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, color.Green.Sprintf("Wine installed into %s", p.InstallDir))
	fmt.Fprintln(out, "To use it, run:")
	fmt.Fprintln(out, color.Cyan.Sprintf("  export PATH=%s:$PATH", filepath.Join(p.InstallDir, "bin")))
	return nil
}
