package internal

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/winebuild/internal/plan"
)

var (
	planFlags  resolveFlags
	planFormat string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the build plan without building",
	Long: `Plan resolves the fixups, configure flags, environment and directories a
build would use and prints them.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planFlags.register(planCmd)
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "text", "Output format: text, json or yaml")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	switch planFormat {
	case "text", "json", "yaml":
	default:
		return usageError("plan", fmt.Errorf("unknown format %q", planFormat))
	}
	_, p, err := resolve(cmd, &planFlags)
	if err != nil {
		return err
	}
	if err := writePlan(cmd.OutOrStdout(), p, planFormat); err != nil {
		return failure("write plan", err)
	}
	return nil
}

func writePlan(w io.Writer, p *plan.BuildPlan, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	}
	if _, err := fmt.Fprintln(w, color.Bold.Sprintf("# %s", describePlan(p))); err != nil {
		return err
	}
	return plan.WriteText(w, p)
}

func describePlan(p *plan.BuildPlan) string {
	v := "unversioned"
	if !p.Version.IsZero() {
		v = p.Version.String()
		if !p.Pinned {
			v += " (floating)"
		}
	}
	return fmt.Sprintf("wine %s %s, %d fixup commits, %d legs", p.Variant, v, len(p.Patches), len(p.Legs))
}
