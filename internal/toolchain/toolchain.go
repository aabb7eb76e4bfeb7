// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package toolchain inspects the host and the cross compiler to find the
// architectures and compiler settings a build should use.
package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/joho/godotenv"

	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/mod/arch"
)

// Runner runs a command and returns its standard output.
type Runner interface {
	Output(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%s: %s", name, msg)
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// Env is a set of toolchain variables, typically loaded from the
// environment script of a cross SDK. Keys missing from Env fall back to
// the process environment.
type Env map[string]string

// LoadEnv reads a dotenv file. An empty path yields an empty Env.
func LoadEnv(path string) (Env, error) {
	if path == "" {
		return Env{}, nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return Env(m), nil
}

// Get returns the value of key.
func (e Env) Get(key string) string {
	if v, ok := e[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// Target is what probing found out about the build.
type Target struct {
	Host   arch.Arch // 64-bit family of the build machine, or its only family
	Arch64 arch.Arch
	Arch32 arch.Arch

	FloatABI  string
	FPU       string
	PkgConfig string
	ClangCC   string
	ClangCXX  string
	ClangCPP  string
}

// Apply copies the probed settings into req. Legs already set on req are
// kept.
func (t *Target) Apply(req *plan.Request) {
	tc := &req.Toolchain
	tc.HostArch = t.Host
	tc.FloatABI, tc.FPU, tc.PkgConfig = t.FloatABI, t.FPU, t.PkgConfig
	tc.ClangCC, tc.ClangCXX, tc.ClangCPP = t.ClangCC, t.ClangCXX, t.ClangCPP
	if req.Arch64 == arch.None && req.Arch32 == arch.None {
		req.Arch64, req.Arch32 = t.Arch64, t.Arch32
	}
}

// Prober discovers the Target of a build.
type Prober struct {
	runner   Runner
	lookPath func(string) (string, error)
	machine  func() (string, error)
	env      Env
}

// Option configures a Prober.
type Option func(*Prober)

// WithRunner sets the command runner.
func WithRunner(r Runner) Option {
	return func(p *Prober) {
		p.runner = r
	}
}

// WithLookPath sets the function resolving executables on PATH.
func WithLookPath(f func(string) (string, error)) Option {
	return func(p *Prober) {
		p.lookPath = f
	}
}

// WithMachine sets the function reporting the host machine name.
func WithMachine(f func() (string, error)) Option {
	return func(p *Prober) {
		p.machine = f
	}
}

// WithEnv sets the toolchain variables.
func WithEnv(env Env) Option {
	return func(p *Prober) {
		p.env = env
	}
}

// NewProber creates a Prober that runs real commands.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		runner:   execRunner{},
		lookPath: exec.LookPath,
		machine:  machine,
		env:      Env{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// HostArch returns the architecture family of the build machine.
func (p *Prober) HostArch() (arch.Arch, error) {
	m, err := p.machine()
	if err != nil {
		return arch.None, err
	}
	return arch.Parse(m)
}

// Probe determines the legs and compiler settings. Without a cross
// prefix the target is the host: a 64-bit host builds itself and its
// 32-bit companion. With a cross prefix the compiler decides the single
// leg to build.
func (p *Prober) Probe(ctx context.Context, crossPrefix string) (*Target, error) {
	host, err := p.HostArch()
	if err != nil {
		return nil, err
	}
	t := &Target{
		Host:     host,
		ClangCC:  p.env.Get("CLANGCC"),
		ClangCXX: p.env.Get("CLANGCXX"),
		ClangCPP: p.env.Get("CLANGCPP"),
	}
	if crossPrefix == "" {
		if host.Is64Bit() {
			t.Arch64, t.Arch32 = host, host.Companion()
		} else {
			t.Arch32 = host
		}
		return t, nil
	}

	cc := crossPrefix + "gcc"
	out, err := p.runner.Output(ctx, cc, "-dumpmachine")
	if err != nil {
		return nil, fmt.Errorf("probe cross compiler: %w", err)
	}
	triplet := strings.TrimSpace(out)
	target, err := arch.Parse(strings.SplitN(triplet, "-", 2)[0])
	if err != nil {
		return nil, err
	}
	switch target {
	case arch.ARM:
		t.Arch32 = target
		if err := p.probeFloat(ctx, t); err != nil {
			return nil, err
		}
	case arch.AArch64:
		t.Arch64 = target
	default:
		return nil, fmt.Errorf("%w: cannot cross compile for %s", arch.ErrUnsupportedArchitecture, triplet)
	}
	if path, err := p.lookPath("pkg-config"); err == nil {
		t.PkgConfig = path
	}
	return t, nil
}

// probeFloat asks the arm compiler for its default float ABI and FPU.
// The compiler is $CC as set up by the SDK environment.
func (p *Prober) probeFloat(ctx context.Context, t *Target) error {
	cc := p.env.Get("CC")
	if cc == "" {
		return fmt.Errorf("probe float ABI: CC is not set")
	}
	fields := strings.Fields(cc)
	out, err := p.runner.Output(ctx, fields[0], append(fields[1:], "-Q", "--help=target")...)
	if err != nil {
		return fmt.Errorf("probe float ABI: %w", err)
	}
	t.FloatABI = targetOption(out, "-mfloat-abi=")
	t.FPU = targetOption(out, "-mfpu=")
	return nil
}

// targetOption returns the value gcc reports for option in the output of
// -Q --help=target, where each line reads "  -mfpu=   vfpv3-d16".
func targetOption(out, option string) string {
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) == 2 && fields[0] == option {
			return fields[1]
		}
	}
	return ""
}
