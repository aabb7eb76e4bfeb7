package internal

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/goplus/winebuild/internal/config"
	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/internal/toolchain"
	"github.com/goplus/winebuild/internal/vcs"
	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

var (
	newVCS = func() vcs.VCS {
		return vcs.NewGitVCS()
	}
	newProber = func(env toolchain.Env) *toolchain.Prober {
		return toolchain.NewProber(toolchain.WithEnv(env))
	}
)

// resolveFlags are the flags shared by the commands resolving a plan.
type resolveFlags struct {
	variant       string
	version       string
	installPrefix string
	jobs          int
	crossPrefix   string
	arch64        string
	arch32        string
	mscoree       bool
	tests         bool
	nopic         bool
	forceAutoconf bool
}

func (f *resolveFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.variant, "variant", "", "Source tree to build: mainline, staging or custom")
	fs.StringVar(&f.version, "version", "", "Wine version to build, e.g. 1.7.12 (default: describe the checkout)")
	fs.StringVar(&f.installPrefix, "install-prefix", "", "Install root (default: derived from the workspace)")
	fs.IntVarP(&f.jobs, "jobs", "j", 0, "Parallel make jobs (default: number of CPUs)")
	fs.StringVar(&f.crossPrefix, "cross-compile-prefix", "", "Cross toolchain prefix, e.g. aarch64-linux-gnu-")
	fs.StringVar(&f.arch64, "arch64", "", "64-bit leg to build, or none (default: probed)")
	fs.StringVar(&f.arch32, "arch32", "", "32-bit leg to build, or none (default: probed)")
	fs.BoolVar(&f.mscoree, "enable-mscoree", false, "Build mscoree")
	fs.BoolVar(&f.tests, "enable-tests", false, "Build the test suite")
	fs.BoolVar(&f.nopic, "enable-nopic", false, "Build 32-bit code without PIC")
	fs.BoolVar(&f.forceAutoconf, "force-autoconf", false, "Regenerate configure and the server protocol")
}

// overlay copies the flags the user set onto c.
func (f *resolveFlags) overlay(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}
	set("workspace", func() { c.Workspace = workspace })
	set("variant", func() { c.Variant = f.variant })
	set("version", func() { c.Version = f.version })
	set("install-prefix", func() { c.InstallPrefix = f.installPrefix })
	set("jobs", func() { c.Jobs = f.jobs })
	set("cross-compile-prefix", func() { c.CrossCompilePrefix = f.crossPrefix })
	set("arch64", func() { c.Arch64 = f.arch64 })
	set("arch32", func() { c.Arch32 = f.arch32 })
	set("enable-mscoree", func() { c.EnableMscoree = f.mscoree })
	set("enable-tests", func() { c.EnableTests = f.tests })
	set("enable-nopic", func() { c.EnableNoPIC = f.nopic })
	set("force-autoconf", func() { c.ForceAutoconf = f.forceAutoconf })
}

// loadConfig layers the config file and the changed flags over the
// defaults.
func loadConfig(cmd *cobra.Command, f *resolveFlags) (*config.Config, error) {
	c, err := config.Resolve(configFile)
	if err != nil {
		return nil, err
	}
	if f != nil {
		f.overlay(cmd, c)
	} else if cmd.Flags().Changed("workspace") {
		c.Workspace = workspace
	}
	if c.Workspace, err = filepath.Abs(c.Workspace); err != nil {
		return nil, err
	}
	return c, nil
}

// parseLeg parses an architecture flag. "none" disables the leg; an
// empty value leaves it to probing.
func parseLeg(s string) (a arch.Arch, set bool, err error) {
	switch s {
	case "":
		return arch.None, false, nil
	case "none":
		return arch.None, true, nil
	}
	a, err = arch.Parse(s)
	return a, true, err
}

// newRequest turns c into a plan request, probing the host and the cross
// compiler for what c leaves open.
func newRequest(ctx context.Context, c *config.Config) (plan.Request, error) {
	variant, err := plan.ParseVariant(c.Variant)
	if err != nil {
		return plan.Request{}, err
	}
	req := plan.Request{
		Workspace:     c.Workspace,
		Variant:       variant,
		InstallPrefix: c.InstallPrefix,
		Toolchain: plan.Toolchain{
			EnableMscoree: c.EnableMscoree,
			EnableTests:   c.EnableTests,
			EnableNoPIC:   c.EnableNoPIC,
			CrossPrefix:   c.CrossCompilePrefix,
			Jobs:          c.Jobs,
		},
	}

	arch64, set64, err := parseLeg(c.Arch64)
	if err != nil {
		return plan.Request{}, fmt.Errorf("arch64: %w", err)
	}
	arch32, set32, err := parseLeg(c.Arch32)
	if err != nil {
		return plan.Request{}, fmt.Errorf("arch32: %w", err)
	}

	env, err := toolchain.LoadEnv(c.EnvFile)
	if err != nil {
		return plan.Request{}, err
	}
	target, err := newProber(env).Probe(ctx, c.CrossCompilePrefix)
	if err != nil {
		return plan.Request{}, err
	}
	target.Apply(&req)
	if set64 || set32 {
		req.Arch64, req.Arch32 = arch64, arch32
		if !set64 {
			req.Arch64 = target.Arch64
		}
		if !set32 {
			req.Arch32 = target.Arch32
		}
	}

	var d version.Describer
	if variant.NeedsVersion() {
		dir := plan.CheckoutDir(c.Workspace, variant)
		d = vcs.Describer(newVCS(), dir)
	}
	v, described, err := version.Normalize(ctx, c.Version, d)
	if err != nil {
		return plan.Request{}, err
	}
	if described {
		log.Infof("using version %s described from the %s checkout", v, variant)
	}
	req.Version, req.Floating = v, described
	return req, nil
}

// resolve loads the settings, builds the request and resolves it.
func resolve(cmd *cobra.Command, f *resolveFlags) (*config.Config, *plan.BuildPlan, error) {
	c, err := loadConfig(cmd, f)
	if err != nil {
		return nil, nil, usageError("load config", err)
	}
	req, err := newRequest(cmd.Context(), c)
	if err != nil {
		return nil, nil, usageError("build request", err)
	}
	p, err := plan.Resolve(req)
	if err != nil {
		return nil, nil, usageError("resolve plan", err)
	}
	return c, p, nil
}
