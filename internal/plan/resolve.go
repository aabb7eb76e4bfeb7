// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package plan decides how a Wine tree is built: which upstream commits
// must be applied to it, which configure flags and environment each
// architecture leg gets, and where sources, build trees and the install
// root live.
//
// Resolution is a pure function of its Request. Rules are evaluated in
// table order against the version, variant, leg architecture and
// toolchain features; nothing is read from the host.
package plan

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// ErrUnresolvedVersion is returned when a variant needs a concrete
// version and none was given.
var ErrUnresolvedVersion = errors.New("unresolved version")

// Toolchain carries the toolchain options that influence the plan.
type Toolchain struct {
	EnableMscoree bool `json:"enable_mscoree,omitempty" yaml:"enable_mscoree,omitempty"`
	EnableTests   bool `json:"enable_tests,omitempty" yaml:"enable_tests,omitempty"`
	EnableNoPIC   bool `json:"enable_nopic,omitempty" yaml:"enable_nopic,omitempty"`

	// CrossPrefix is the cross toolchain prefix, e.g. "aarch64-linux-gnu-".
	// Empty for native builds.
	CrossPrefix string `json:"cross_prefix,omitempty" yaml:"cross_prefix,omitempty"`
	// HostArch is the 64-bit host architecture whose native build provides
	// the tools when cross compiling.
	HostArch arch.Arch `json:"host_arch,omitempty" yaml:"host_arch,omitempty"`
	FloatABI string    `json:"float_abi,omitempty" yaml:"float_abi,omitempty"`
	FPU      string    `json:"fpu,omitempty" yaml:"fpu,omitempty"`

	PkgConfig string `json:"pkg_config,omitempty" yaml:"pkg_config,omitempty"`
	ClangCC   string `json:"clang_cc,omitempty" yaml:"clang_cc,omitempty"`
	ClangCXX  string `json:"clang_cxx,omitempty" yaml:"clang_cxx,omitempty"`
	ClangCPP  string `json:"clang_cpp,omitempty" yaml:"clang_cpp,omitempty"`

	Jobs int `json:"jobs,omitempty" yaml:"jobs,omitempty"`
}

// Triplet returns the target triplet named by CrossPrefix.
func (t *Toolchain) Triplet() string {
	return strings.TrimRight(t.CrossPrefix, "-")
}

func (t *Toolchain) features() Feature {
	var f Feature
	if t.EnableMscoree {
		f |= Mscoree
	}
	if t.EnableTests {
		f |= Tests
	}
	if t.EnableNoPIC {
		f |= NoPIC
	}
	if t.CrossPrefix != "" {
		f |= Cross
	}
	return f
}

// Request is the input of Resolve.
type Request struct {
	Workspace string
	Variant   Variant
	Version   version.Version
	// Floating is set when Version was described from a checkout rather
	// than requested. A floating version selects fixups but does not pin
	// paths or tags.
	Floating bool
	// Arch64 and Arch32 are the legs to build; either may be arch.None.
	Arch64 arch.Arch
	Arch32 arch.Arch
	// InstallPrefix overrides the install root.
	InstallPrefix string
	Toolchain     Toolchain
}

func (r *Request) pinned() bool {
	return !r.Version.IsZero() && !r.Floating
}

func (r *Request) validate() error {
	if !r.Variant.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidVariant, r.Variant)
	}
	if r.Version.IsZero() && r.Variant.NeedsVersion() {
		return fmt.Errorf("%w: the %s variant needs a version", ErrUnresolvedVersion, r.Variant)
	}
	if r.Arch64 != arch.None && !r.Arch64.Is64Bit() {
		return fmt.Errorf("%w: %v is not a 64-bit architecture", arch.ErrUnsupportedArchitecture, r.Arch64)
	}
	if r.Arch32 != arch.None && !r.Arch32.Is32Bit() {
		return fmt.Errorf("%w: %v is not a 32-bit architecture", arch.ErrUnsupportedArchitecture, r.Arch32)
	}
	if r.Arch64 != arch.None && r.Arch32 != arch.None && r.Arch64.Companion() != r.Arch32 {
		return fmt.Errorf("%w: %v cannot share an install with %v", arch.ErrUnsupportedArchitecture, r.Arch32, r.Arch64)
	}
	if r.Toolchain.CrossPrefix != "" && !r.Toolchain.HostArch.Is64Bit() {
		return fmt.Errorf("%w: cross builds need a 64-bit host architecture, got %v", arch.ErrUnsupportedArchitecture, r.Toolchain.HostArch)
	}
	return nil
}

// PatchStep is one commit to apply to the variant tree.
type PatchStep struct {
	Rule   string `json:"rule" yaml:"rule"`
	Ref    string `json:"ref" yaml:"ref"`
	Binary bool   `json:"binary,omitempty" yaml:"binary,omitempty"`
}

// Leg is the part of a plan specific to one architecture.
type Leg struct {
	Arch     arch.Arch `json:"arch" yaml:"arch"`
	BuildDir string    `json:"build_dir" yaml:"build_dir"`
	// DependsOn is the build tree of the 64-bit leg, which must be built
	// before this leg is configured.
	DependsOn string            `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Configure []string          `json:"configure" yaml:"configure"`
	Env       map[string]string `json:"env" yaml:"env"`
	Libraries LibraryLayout     `json:"libraries" yaml:"libraries"`
	LogFile   string            `json:"log_file" yaml:"log_file"`
}

// BuildPlan is the result of Resolve. Legs are ordered 64-bit first.
type BuildPlan struct {
	Variant    Variant         `json:"variant" yaml:"variant"`
	Version    version.Version `json:"version,omitempty" yaml:"version,omitempty"`
	Pinned     bool            `json:"pinned" yaml:"pinned"`
	Sources    Sources         `json:"sources" yaml:"sources"`
	Patches    []PatchStep     `json:"patches" yaml:"patches"`
	InstallDir string          `json:"install_dir" yaml:"install_dir"`
	Legs       []Leg           `json:"legs" yaml:"legs"`
}

// Leg returns the leg building a, if any.
func (p *BuildPlan) Leg(a arch.Arch) (Leg, bool) {
	for _, l := range p.Legs {
		if l.Arch == a {
			return l, true
		}
	}
	return Leg{}, false
}

// Resolver evaluates a fixed rule table.
type Resolver struct {
	rules []Rule
}

// New returns a Resolver over rules after validating them. The table is
// copied; later changes to rules do not affect the Resolver.
func New(rules []Rule) (*Resolver, error) {
	if err := Validate(rules); err != nil {
		return nil, err
	}
	return &Resolver{rules: slices.Clone(rules)}, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(rules []Rule) *Resolver {
	r, err := New(rules)
	if err != nil {
		panic(err)
	}
	return r
}

// Rules returns a copy of the table.
func (r *Resolver) Rules() []Rule {
	return slices.Clone(r.rules)
}

// Resolve resolves req against the Wine fixup table.
func Resolve(req Request) (*BuildPlan, error) {
	return defaultResolver.Resolve(req)
}

// ResolveLeg resolves the leg a of req against the Wine fixup table.
func ResolveLeg(req Request, a arch.Arch) (Leg, error) {
	return defaultResolver.ResolveLeg(req, a)
}

// Resolve produces the complete plan for req, or an error and no plan.
func (r *Resolver) Resolve(req Request) (*BuildPlan, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	l := newLayout(&req)
	p := &BuildPlan{
		Variant:    req.Variant,
		Version:    req.Version,
		Pinned:     req.pinned(),
		Sources:    l.sources(&req),
		Patches:    r.patches(&req),
		InstallDir: installDir(&req, l),
	}
	for _, a := range []arch.Arch{req.Arch64, req.Arch32} {
		if a == arch.None {
			continue
		}
		leg, err := r.ResolveLeg(req, a)
		if err != nil {
			return nil, err
		}
		p.Legs = append(p.Legs, leg)
	}
	return p, nil
}

// ResolveLeg resolves the leg a of req on its own. It depends only on
// req, so both legs may be resolved in any order or concurrently; the
// 32-bit leg refers to the 64-bit build tree by path.
func (r *Resolver) ResolveLeg(req Request, a arch.Arch) (Leg, error) {
	if err := req.validate(); err != nil {
		return Leg{}, err
	}
	if a == arch.None || (a != req.Arch64 && a != req.Arch32) {
		return Leg{}, fmt.Errorf("%w: %v is not a leg of this request", arch.ErrUnsupportedArchitecture, a)
	}
	l := newLayout(&req)
	leg := Leg{
		Arch:      a,
		BuildDir:  l.buildDir(a),
		Configure: []string{},
		Env:       map[string]string{},
		Libraries: ResolveLibraryLayout(req.Version, a),
		LogFile:   "build_" + a.String() + ".log",
	}
	if a == req.Arch32 && req.Arch64 != arch.None {
		leg.DependsOn = l.buildDir(req.Arch64)
	}
	vars := legVars(&req, l, &leg)
	features := req.Toolchain.features()
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.applies(req.Variant, req.Version, features) || !rule.appliesTo(a) {
			continue
		}
		for _, act := range rule.Actions {
			if act.Kind.sourceLevel() {
				continue
			}
			value, ok := expand(act.Value, vars)
			if !ok && act.Optional {
				continue
			}
			switch act.Kind {
			case Configure:
				leg.Configure = append(leg.Configure, value)
			case DisableSubsystem:
				leg.Configure = append(leg.Configure, "--disable-"+value)
			case SetEnv:
				leg.Env[act.Key] = value
			case AppendEnv:
				if cur := leg.Env[act.Key]; cur != "" {
					value = cur + " " + value
				}
				leg.Env[act.Key] = value
			}
		}
	}
	return leg, nil
}

// patches collects the source level actions in table order.
func (r *Resolver) patches(req *Request) []PatchStep {
	steps := []PatchStep{}
	features := req.Toolchain.features()
	for i := range r.rules {
		rule := &r.rules[i]
		if !rule.applies(req.Variant, req.Version, features) {
			continue
		}
		for _, act := range rule.Actions {
			if act.Kind.sourceLevel() {
				steps = append(steps, PatchStep{Rule: rule.Name, Ref: act.Ref, Binary: act.Kind == BinaryPatch})
			}
		}
	}
	return steps
}

func installDir(req *Request, l layout) string {
	if req.InstallPrefix != "" {
		return req.InstallPrefix
	}
	return l.installDir(req.Arch64, req.Arch32)
}

func legVars(req *Request, l layout, leg *Leg) map[string]string {
	tc := &req.Toolchain
	vars := map[string]string{
		VarArch:           leg.Arch.String(),
		VarFloatABI:       tc.FloatABI,
		VarFPU:            tc.FPU,
		VarPkgConfig:      tc.PkgConfig,
		VarClangCC:        tc.ClangCC,
		VarClangCXX:       tc.ClangCXX,
		VarClangCPP:       tc.ClangCPP,
		VarWine64BuildDir: leg.DependsOn,
	}
	if tc.CrossPrefix != "" {
		vars[VarTriplet] = tc.Triplet()
		vars[VarHostToolsDir] = l.buildDir(tc.HostArch)
	}
	if tc.Jobs > 0 {
		vars[VarJobs] = strconv.Itoa(tc.Jobs)
	}
	return vars
}

// expand substitutes ${NAME} references. ok is false when a referenced
// variable is empty or unknown.
func expand(s string, vars map[string]string) (value string, ok bool) {
	ok = true
	value = os.Expand(s, func(name string) string {
		v := vars[name]
		if v == "" {
			ok = false
		}
		return v
	})
	return value, ok
}
