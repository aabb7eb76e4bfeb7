package build

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goplus/winebuild/internal/plan"
	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// fakeVCS records calls and creates directories on Clone.
type fakeVCS struct {
	calls     []string
	contained map[string]bool
	fail      string
}

func (f *fakeVCS) record(call string) error {
	f.calls = append(f.calls, call)
	if f.fail != "" && strings.HasPrefix(call, f.fail) {
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (f *fakeVCS) Clone(_ context.Context, src, dir string) error {
	if err := f.record("clone " + src + " " + dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func (f *fakeVCS) Reset(_ context.Context, dir, ref string) error {
	return f.record("reset " + dir + " " + ref)
}

func (f *fakeVCS) Contains(_ context.Context, dir, commit string) (bool, error) {
	return f.contained[commit], nil
}

func (f *fakeVCS) CherryPick(_ context.Context, dir, commit string) error {
	return f.record("cherry-pick " + commit)
}

func (f *fakeVCS) ApplyBinary(_ context.Context, dir, commit string) error {
	return f.record("apply-binary " + commit)
}

func (f *fakeVCS) Describe(context.Context, string) (string, error) {
	return "", errors.New("not supported")
}

func (f *fakeVCS) Tags(context.Context, string) ([]string, error) {
	return nil, nil
}

// fakeRunner records commands and echoes them into the leg log.
type fakeRunner struct {
	cmds []*Command
	fail string
}

func (f *fakeRunner) Run(_ context.Context, c *Command) error {
	f.cmds = append(f.cmds, c)
	if c.Log != nil {
		fmt.Fprintf(c.Log, "ran %s\n", c)
	}
	if f.fail != "" && c.String() == f.fail {
		return fmt.Errorf("%s: exit status 2", c)
	}
	return nil
}

func (f *fakeRunner) lines() []string {
	var out []string
	for _, c := range f.cmds {
		out = append(out, c.Dir+": "+c.String())
	}
	return out
}

func resolve(t *testing.T, ws string, variant plan.Variant, v string) *plan.BuildPlan {
	t.Helper()
	req := plan.Request{
		Workspace: ws,
		Variant:   variant,
		Arch64:    arch.X86_64,
		Arch32:    arch.I386,
	}
	if v != "" {
		req.Version = version.MustParse(v)
	}
	p, err := plan.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	return p
}

func TestExecute_Mainline(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Mainline, "1.7.12")
	v := &fakeVCS{contained: map[string]bool{"10065d2acd0a9e1e852a8151c95569b99d1b3294": true}}
	r := &fakeRunner{}
	e := NewExecutor(v, Options{Workspace: ws, MainlineURL: "upstream.git"}, WithRunner(r))
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	id, err := e.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("run id %q is not a uuid: %v", id, err)
	}

	wantCalls := []string{
		"clone upstream.git " + ws + "/mainline-src",
		"clone " + ws + "/mainline-src " + ws + "/mainline-src-1.7.12",
		"reset " + ws + "/mainline-src-1.7.12 wine-1.7.12",
		"cherry-pick deb274226783ab886bdb44876944e156757efe2b",
		"cherry-pick 28173f06932edd85a64a952120d29b9bb1e762ea",
	}
	if diff := cmp.Diff(wantCalls, v.calls); diff != "" {
		t.Errorf("vcs calls mismatch (-want +got):\n%s", diff)
	}

	b64 := ws + "/mainline-build-1.7.12-x86_64"
	b32 := ws + "/mainline-build-1.7.12-i386"
	install := ws + "/mainline-install-1.7.12-x86_64"
	src := ws + "/mainline-src-1.7.12"
	wantCmds := []string{
		b64 + ": " + src + "/configure --prefix=" + install + " --disable-mscoree --disable-tests --enable-win64",
		b64 + ": make",
		b64 + ": make install",
		b32 + ": " + src + "/configure --prefix=" + install + " --disable-mscoree --disable-tests --with-wine64=" + b64,
		b32 + ": make",
		b32 + ": make install",
	}
	if diff := cmp.Diff(wantCmds, r.lines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if got := r.cmds[0].Env["CFLAGS"]; got != "-g -O2 -fcommon" {
		t.Errorf("CFLAGS = %q", got)
	}

	logData, err := os.ReadFile(filepath.Join(b32, "build_i386.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.HasPrefix(string(logData), "# winebuild run "+id+", i386 leg\n") || !strings.Contains(string(logData), "ran make install") {
		t.Errorf("unexpected log:\n%s", logData)
	}

	target, err := os.Readlink(filepath.Join(install, "lib32"))
	if err != nil || target != "lib" {
		t.Errorf("lib32 -> %q, %v", target, err)
	}

	rec, err := LoadRecord(install)
	if err != nil {
		t.Fatalf("LoadRecord failed: %v", err)
	}
	wantRec := &Record{
		RunID:   id,
		Variant: plan.Mainline,
		Version: version.MustParse("1.7.12"),
		Pinned:  true,
		Patches: []string{
			"deb274226783ab886bdb44876944e156757efe2b",
			"10065d2acd0a9e1e852a8151c95569b99d1b3294",
			"28173f06932edd85a64a952120d29b9bb1e762ea",
		},
		Legs:      []arch.Arch{arch.X86_64, arch.I386},
		BuildTime: fixed,
	}
	if diff := cmp.Diff(wantRec, rec); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_ReusesSources(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Mainline, "7.0")
	for _, dir := range []string{p.Sources.LocalClone, p.Sources.Mainline} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	v := &fakeVCS{}
	e := NewExecutor(v, Options{Workspace: ws, NoResetSource: true, NoConfigure: true}, WithRunner(&fakeRunner{}))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(v.calls) != 0 {
		t.Errorf("unexpected vcs calls: %v", v.calls)
	}
}

func TestExecute_Unversioned(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Mainline, "")
	v := &fakeVCS{}
	e := NewExecutor(v, Options{Workspace: ws, MainlineURL: "upstream.git"}, WithRunner(&fakeRunner{}))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	// the local clone is the tree; nothing is reset
	want := []string{"clone upstream.git " + ws + "/mainline-src"}
	if diff := cmp.Diff(want, v.calls); diff != "" {
		t.Errorf("vcs calls mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_Staging(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Staging, "6.0")
	v := &fakeVCS{}
	r := &fakeRunner{}
	e := NewExecutor(v, Options{Workspace: ws, MainlineURL: "upstream.git", StagingURL: "staging.git", ForceAutoconf: true}, WithRunner(r))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	wantCalls := []string{
		"clone upstream.git " + ws + "/mainline-src",
		"clone " + ws + "/mainline-src " + ws + "/mainline-src-6.0",
		"reset " + ws + "/mainline-src-6.0 wine-6.0",
		"clone staging.git " + ws + "/staging-patches-6.0",
		"clone " + ws + "/mainline-src-6.0 " + ws + "/staging-src-6.0",
		"reset " + ws + "/staging-patches-6.0 v6.0",
		"reset " + ws + "/staging-src-6.0 wine-6.0",
	}
	if diff := cmp.Diff(wantCalls, v.calls); diff != "" {
		t.Errorf("vcs calls mismatch (-want +got):\n%s", diff)
	}
	src := ws + "/staging-src-6.0"
	wantFirst := []string{
		src + ": " + ws + "/staging-patches-6.0/patches/patchinstall.sh DESTDIR=" + src + " --backend=git --force-autoconf --all",
		src + ": autoreconf -f",
		src + ": ./tools/make_requests",
	}
	if diff := cmp.Diff(wantFirst, r.lines()[:3]); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_StagingFloating(t *testing.T) {
	ws := t.TempDir()
	p, err := plan.Resolve(plan.Request{
		Workspace: ws,
		Variant:   plan.Staging,
		Version:   version.MustParse("9.0"),
		Floating:  true,
		Arch64:    arch.X86_64,
	})
	if err != nil {
		t.Fatal(err)
	}
	v := &fakeVCS{}
	e := NewExecutor(v, Options{Workspace: ws}, WithRunner(&fakeRunner{}))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, want := range []string{
		"reset " + ws + "/staging-patches @{upstream}",
		"reset " + ws + "/staging-src @{upstream}",
	} {
		if !slices.Contains(v.calls, want) {
			t.Errorf("missing %q in %v", want, v.calls)
		}
	}
	// the install root has no 32-bit leg and so no lib32 link
	if _, err := os.Lstat(filepath.Join(p.InstallDir, "lib32")); !os.IsNotExist(err) {
		t.Errorf("lib32 exists without a 32-bit leg: %v", err)
	}
}

func TestExecute_CustomMissing(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Custom, "5.0")
	v := &fakeVCS{}
	e := NewExecutor(v, Options{Workspace: ws}, WithRunner(&fakeRunner{}))
	_, err := e.Execute(context.Background(), p)
	if !errors.Is(err, ErrMissingSource) {
		t.Errorf("Execute error = %v, want %v", err, ErrMissingSource)
	}
}

func TestExecute_Clean(t *testing.T) {
	ws := t.TempDir()
	p := resolve(t, ws, plan.Mainline, "7.0")
	stale := filepath.Join(p.Legs[0].BuildDir, "stale.o")
	old := filepath.Join(p.InstallDir, "bin", "wine")
	for _, f := range []string{stale, old} {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(f, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	e := NewExecutor(&fakeVCS{}, Options{Workspace: ws}, WithRunner(&fakeRunner{}))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !exists(stale) {
		t.Error("build tree removed without Clean")
	}
	if exists(old) {
		t.Error("install root not removed")
	}

	e = NewExecutor(&fakeVCS{}, Options{Workspace: ws, Clean: true}, WithRunner(&fakeRunner{}))
	if _, err := e.Execute(context.Background(), p); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if exists(stale) {
		t.Error("build tree kept with Clean")
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name   string
		vcs    *fakeVCS
		runner *fakeRunner
		want   string
	}{
		{"clone", &fakeVCS{fail: "clone"}, &fakeRunner{}, "prepare sources"},
		{"cherry-pick", &fakeVCS{fail: "cherry-pick deb27422"}, &fakeRunner{}, "apply fixups"},
		{"make", &fakeVCS{}, &fakeRunner{fail: "make"}, "build: x86_64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := t.TempDir()
			p := resolve(t, ws, plan.Mainline, "1.7.12")
			e := NewExecutor(tt.vcs, Options{Workspace: ws}, WithRunner(tt.runner))
			_, err := e.Execute(context.Background(), p)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Execute error = %v, want it to mention %q", err, tt.want)
			}
			if exists(filepath.Join(p.InstallDir, recordFile)) {
				t.Error("record written for a failed run")
			}
		})
	}
}

func TestLockWorkspace(t *testing.T) {
	ws := t.TempDir()
	unlock, err := lockWorkspace(ws)
	if err != nil {
		t.Fatalf("lockWorkspace failed: %v", err)
	}

	var mu sync.Mutex
	acquired := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		unlock2, err := lockWorkspace(ws)
		if err != nil {
			t.Errorf("second lockWorkspace failed: %v", err)
			return
		}
		mu.Lock()
		acquired = true
		mu.Unlock()
		unlock2()
	}()

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	early := acquired
	mu.Unlock()
	if early {
		t.Error("second lock acquired while the first was held")
	}
	if err := unlock(); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	<-done
	if !acquired {
		t.Error("second lock never acquired")
	}
}

func TestWithOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}
	var out, logged bytes.Buffer
	e := NewExecutor(&fakeVCS{}, Options{}, WithOutput(&out))
	err := e.runner.Run(context.Background(), &Command{
		Dir:  t.TempDir(),
		Name: "sh",
		Args: []string{"-c", "echo $WINE_LEG; echo oops >&2"},
		Env:  map[string]string{"WINE_LEG": "i386"},
		Log:  &logged,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, buf := range []*bytes.Buffer{&out, &logged} {
		if got := buf.String(); !strings.Contains(got, "i386\n") || !strings.Contains(got, "oops\n") {
			t.Errorf("output = %q, want both streams", got)
		}
	}

	err = e.runner.Run(context.Background(), &Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	if err == nil || !strings.Contains(err.Error(), "sh -c exit 3") {
		t.Errorf("Run error = %v, want the failing command line", err)
	}
}

func TestMergeEnv(t *testing.T) {
	got := mergeEnv([]string{"PATH=/bin", "CFLAGS=-O0", "HOME=/root"}, map[string]string{"CFLAGS": "-g -O2", "CC": "clang"})
	want := []string{"PATH=/bin", "CFLAGS=-g -O2", "HOME=/root", "CC=clang"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeEnv mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRecord_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadRecord(dir); err == nil {
		t.Error("LoadRecord succeeded without a record")
	}
	if err := os.WriteFile(filepath.Join(dir, recordFile), []byte("invalid json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRecord(dir); err == nil {
		t.Error("LoadRecord succeeded on invalid JSON")
	}
}
