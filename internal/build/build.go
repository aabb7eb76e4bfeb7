// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build carries out a resolved build plan: it prepares the source
// trees, applies the fixup commits, and configures, builds and installs
// every leg.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/qiniu/x/log"

	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/internal/vcs"
)

const (
	// MainlineURL is the upstream Wine repository.
	MainlineURL = "https://gitlab.winehq.org/wine/wine.git"
	// StagingURL is the upstream Wine-Staging repository.
	StagingURL = "https://gitlab.winehq.org/wine/wine-staging.git"

	lockFile = ".winebuild.lock"

	upstreamRef = "@{upstream}"
)

// ErrMissingSource is returned when a custom tree to build does not exist.
var ErrMissingSource = errors.New("missing source tree")

// Options controls how a plan is carried out.
type Options struct {
	// Workspace is locked for the duration of a run.
	Workspace string

	MainlineURL string
	StagingURL  string

	Clean         bool // remove the build trees first
	NoConfigure   bool // reuse the existing configuration
	NoResetSource bool // keep local changes in the source trees
	ForceAutoconf bool // regenerate configure and the server protocol
}

// Executor runs build plans.
type Executor struct {
	vcs    vcs.VCS
	runner Runner
	opts   Options
	now    func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunner sets the command runner.
func WithRunner(r Runner) ExecutorOption {
	return func(e *Executor) {
		e.runner = r
	}
}

// WithOutput sends the output of build commands to w.
func WithOutput(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.runner = &execRunner{stdout: w, stderr: w}
	}
}

// NewExecutor creates an Executor using v for source control.
func NewExecutor(v vcs.VCS, opts Options, options ...ExecutorOption) *Executor {
	if opts.MainlineURL == "" {
		opts.MainlineURL = MainlineURL
	}
	if opts.StagingURL == "" {
		opts.StagingURL = StagingURL
	}
	e := &Executor{
		vcs:    v,
		runner: &execRunner{stdout: os.Stdout, stderr: os.Stderr},
		opts:   opts,
		now:    time.Now,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// run is the state of one Execute call.
type run struct {
	*Executor
	id string
	p  *plan.BuildPlan
}

// Execute carries out p. It returns the run id, which also appears in the
// logs and in the build record of the install root.
func (e *Executor) Execute(ctx context.Context, p *plan.BuildPlan) (string, error) {
	r := &run{Executor: e, id: uuid.NewString(), p: p}
	log.Infof("[%s] building %s %s", r.id, p.Variant, versionString(p))

	unlock, err := lockWorkspace(e.opts.Workspace)
	if err != nil {
		return r.id, err
	}
	defer unlock()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"prepare sources", r.prepareSources},
		{"apply fixups", r.applyPatches},
		{"clean", r.clean},
		{"autoconf", r.autoconf},
		{"build", r.buildLegs},
		{"record", r.record},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return r.id, fmt.Errorf("%s: %w", step.name, err)
		}
	}
	log.Infof("[%s] installed into %s", r.id, p.InstallDir)
	return r.id, nil
}

func versionString(p *plan.BuildPlan) string {
	if p.Version.IsZero() {
		return "(unversioned)"
	}
	return p.Version.String()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// prepareSources makes sure the variant tree exists and is at the
// planned version.
func (r *run) prepareSources(ctx context.Context) error {
	s := &r.p.Sources
	reset := !r.opts.NoResetSource

	if !exists(s.Mainline) {
		if !exists(s.LocalClone) {
			log.Infof("[%s] cloning %s", r.id, r.opts.MainlineURL)
			if err := r.vcs.Clone(ctx, r.opts.MainlineURL, s.LocalClone); err != nil {
				return err
			}
		}
		if s.Mainline != s.LocalClone {
			if err := r.vcs.Clone(ctx, s.LocalClone, s.Mainline); err != nil {
				return err
			}
		}
	}
	if reset && s.MainlineRef != "" {
		if err := r.vcs.Reset(ctx, s.Mainline, s.MainlineRef); err != nil {
			return err
		}
	}

	switch r.p.Variant {
	case plan.Staging:
		return r.prepareStaging(ctx, reset)
	case plan.Custom:
		if !exists(s.Variant) {
			return fmt.Errorf("%w: %s", ErrMissingSource, s.Variant)
		}
	}
	return nil
}

func (r *run) prepareStaging(ctx context.Context, reset bool) error {
	s := &r.p.Sources
	if !exists(s.StagingPatches) {
		log.Infof("[%s] cloning %s", r.id, r.opts.StagingURL)
		if err := r.vcs.Clone(ctx, r.opts.StagingURL, s.StagingPatches); err != nil {
			return err
		}
	}
	if !exists(s.Variant) {
		if err := r.vcs.Clone(ctx, s.Mainline, s.Variant); err != nil {
			return err
		}
	}
	if reset {
		if err := r.vcs.Reset(ctx, s.StagingPatches, orUpstream(s.StagingRef)); err != nil {
			return err
		}
		if err := r.vcs.Reset(ctx, s.Variant, orUpstream(s.MainlineRef)); err != nil {
			return err
		}
	}
	return r.runner.Run(ctx, &Command{
		Dir:  s.Variant,
		Name: filepath.Join(s.StagingPatches, "patches", "patchinstall.sh"),
		Args: []string{"DESTDIR=" + s.Variant, "--backend=git", "--force-autoconf", "--all"},
	})
}

func orUpstream(ref string) string {
	if ref == "" {
		return upstreamRef
	}
	return ref
}

func (r *run) applyPatches(ctx context.Context) error {
	dir := r.p.Sources.Variant
	for _, step := range r.p.Patches {
		ok, err := r.vcs.Contains(ctx, dir, step.Ref)
		if err != nil {
			return err
		}
		if ok {
			log.Debugf("[%s] %s already contains %s", r.id, dir, step.Ref)
			continue
		}
		log.Infof("[%s] applying %s (%s)", r.id, step.Ref, step.Rule)
		if step.Binary {
			err = r.vcs.ApplyBinary(ctx, dir, step.Ref)
		} else {
			err = r.vcs.CherryPick(ctx, dir, step.Ref)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// clean removes the install root, and the build trees when asked to.
func (r *run) clean(context.Context) error {
	if r.opts.Clean {
		for _, l := range r.p.Legs {
			if err := os.RemoveAll(l.BuildDir); err != nil {
				return err
			}
		}
	}
	return os.RemoveAll(r.p.InstallDir)
}

func (r *run) autoconf(ctx context.Context) error {
	if !r.opts.ForceAutoconf {
		return nil
	}
	dir := r.p.Sources.Variant
	if err := r.runner.Run(ctx, &Command{Dir: dir, Name: "autoreconf", Args: []string{"-f"}}); err != nil {
		return err
	}
	return r.runner.Run(ctx, &Command{Dir: dir, Name: "./tools/make_requests"})
}

func (r *run) buildLegs(ctx context.Context) error {
	for _, l := range r.p.Legs {
		if err := r.buildLeg(ctx, &l); err != nil {
			return fmt.Errorf("%s: %w", l.Arch, err)
		}
		if l.Arch.Is32Bit() {
			if err := linkLib32(r.p.InstallDir); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) buildLeg(ctx context.Context, l *plan.Leg) error {
	if err := os.MkdirAll(l.BuildDir, 0o755); err != nil {
		return err
	}
	logFile, err := os.Create(filepath.Join(l.BuildDir, l.LogFile))
	if err != nil {
		return err
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "# winebuild run %s, %s leg\n", r.id, l.Arch)

	log.Infof("[%s] building %s in %s", r.id, l.Arch, l.BuildDir)
	var cmds []*Command
	if !r.opts.NoConfigure {
		args := append([]string{"--prefix=" + r.p.InstallDir}, l.Configure...)
		cmds = append(cmds, &Command{Name: filepath.Join(r.p.Sources.Variant, "configure"), Args: args})
	}
	cmds = append(cmds,
		&Command{Name: "make"},
		&Command{Name: "make", Args: []string{"install"}},
	)
	for _, c := range cmds {
		c.Dir, c.Env, c.Log = l.BuildDir, l.Env, logFile
		log.Debugf("[%s] %s", r.id, c)
		if err := r.runner.Run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// linkLib32 points lib32 at lib so that winegcc -m32 finds the 32-bit
// libraries. The link is relative so the install root can be moved.
func linkLib32(installDir string) error {
	link := filepath.Join(installDir, "lib32")
	if _, err := os.Lstat(link); err == nil {
		return nil
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return err
	}
	return os.Symlink("lib", link)
}

func (r *run) record(context.Context) error {
	rec := &Record{
		RunID:     r.id,
		Variant:   r.p.Variant,
		Version:   r.p.Version,
		Pinned:    r.p.Pinned,
		Legs:      r.p.Arches(),
		BuildTime: r.now().UTC(),
	}
	for _, step := range r.p.Patches {
		rec.Patches = append(rec.Patches, step.Ref)
	}
	return saveRecord(r.p.InstallDir, rec)
}
