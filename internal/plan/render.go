package plan

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/goplus/winebuild/mod/arch"
)

// WriteText writes a human readable rendering of p to w. The output is
// deterministic: environment keys are sorted.
func WriteText(w io.Writer, p *BuildPlan) error {
	b := bufio.NewWriter(w)
	version := p.Version.String()
	if version == "" {
		version = "(none)"
	}
	fmt.Fprintf(b, "variant: %s\n", p.Variant)
	fmt.Fprintf(b, "version: %s\n", version)
	fmt.Fprintf(b, "pinned: %t\n", p.Pinned)
	fmt.Fprintf(b, "install: %s\n", p.InstallDir)

	fmt.Fprintln(b, "sources:")
	s := p.Sources
	fmt.Fprintf(b, "  local clone: %s\n", s.LocalClone)
	fmt.Fprintf(b, "  mainline: %s%s\n", s.Mainline, at(s.MainlineRef))
	if s.StagingPatches != "" {
		fmt.Fprintf(b, "  staging patches: %s%s\n", s.StagingPatches, at(s.StagingRef))
	}
	fmt.Fprintf(b, "  tree: %s\n", s.Variant)

	fmt.Fprintln(b, "patches:")
	if len(p.Patches) == 0 {
		fmt.Fprintln(b, "  (none)")
	}
	for _, step := range p.Patches {
		kind := "cherry-pick"
		if step.Binary {
			kind = "binary"
		}
		fmt.Fprintf(b, "  %s %s (%s)\n", kind, step.Ref, step.Rule)
	}

	fmt.Fprintln(b, "legs:")
	if len(p.Legs) == 0 {
		fmt.Fprintln(b, "  (none)")
	}
	for _, l := range p.Legs {
		fmt.Fprintf(b, "  %s:\n", l.Arch)
		fmt.Fprintf(b, "    build: %s\n", l.BuildDir)
		if l.DependsOn != "" {
			fmt.Fprintf(b, "    after: %s\n", l.DependsOn)
		}
		fmt.Fprintf(b, "    configure: %s\n", strings.Join(l.Configure, " "))
		fmt.Fprintln(b, "    env:")
		for _, k := range sortedKeys(l.Env) {
			fmt.Fprintf(b, "      %s=%s\n", k, l.Env[k])
		}
		fmt.Fprintf(b, "    libraries: pe=%s native=%s\n", l.Libraries.PEDir, l.Libraries.NativeDir)
		fmt.Fprintf(b, "    log: %s\n", l.LogFile)
	}
	return b.Flush()
}

func at(ref string) string {
	if ref == "" {
		return ""
	}
	return " @ " + ref
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// WriteRules lists rules as a table, one action per line.
func WriteRules(w io.Writer, rules []Rule) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tVERSIONS\tSCOPE\tACTION")
	for i := range rules {
		r := &rules[i]
		for j, a := range r.Actions {
			name, versions, scope := "", "", ""
			if j == 0 {
				name, versions, scope = r.Name, r.versions(), r.scope()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, versions, scope, a)
		}
	}
	return tw.Flush()
}

func (r *Rule) versions() string {
	s := r.Interval.String()
	for _, x := range r.Exclude {
		s += " !" + x.String()
	}
	return s
}

func (r *Rule) scope() string {
	var parts []string
	if len(r.Variants) > 0 {
		vs := make([]string, len(r.Variants))
		for i, v := range r.Variants {
			vs[i] = string(v)
		}
		parts = append(parts, strings.Join(vs, ","))
	}
	if len(r.Arches) > 0 {
		as := make([]string, len(r.Arches))
		for i, a := range r.Arches {
			as[i] = a.String()
		}
		parts = append(parts, strings.Join(as, ","))
	}
	if r.Requires != 0 {
		parts = append(parts, "+"+r.Requires.String())
	}
	if r.Unless != 0 {
		parts = append(parts, "-"+r.Unless.String())
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// Arches returns the architectures of the legs of p, in build order.
func (p *BuildPlan) Arches() []arch.Arch {
	as := make([]arch.Arch, len(p.Legs))
	for i, l := range p.Legs {
		as[i] = l.Arch
	}
	return as
}
