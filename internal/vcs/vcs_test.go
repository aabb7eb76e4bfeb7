package vcs

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goplus/winebuild/mod/version"
)

// newUpstream creates a repository with two release tags on the default
// branch and a "fix" branch carrying a text and a binary commit. It
// returns the repository path and the two fix commits.
func newUpstream(t *testing.T) (dir, textFix, binFix string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	t.Setenv("GIT_AUTHOR_NAME", "winebuild")
	t.Setenv("GIT_AUTHOR_EMAIL", "winebuild@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "winebuild")
	t.Setenv("GIT_COMMITTER_EMAIL", "winebuild@example.com")

	dir = filepath.Join(t.TempDir(), "upstream")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	git(t, dir, "init", "-q")
	writeFile(t, dir, "VERSION", "1.0\n")
	git(t, dir, "add", ".")
	git(t, dir, "commit", "-q", "-m", "release 1.0")
	git(t, dir, "tag", "wine-1.0")
	writeFile(t, dir, "VERSION", "1.1\n")
	git(t, dir, "commit", "-q", "-am", "release 1.1")
	git(t, dir, "tag", "wine-1.1")

	git(t, dir, "checkout", "-q", "-b", "fix")
	writeFile(t, dir, "fix.txt", "fixed\n")
	git(t, dir, "add", "fix.txt")
	git(t, dir, "commit", "-q", "-m", "fix build")
	textFix = git(t, dir, "rev-parse", "HEAD")
	writeFile(t, dir, "icon.bin", "\x00\x01\x02\xff\x00")
	git(t, dir, "add", "icon.bin")
	git(t, dir, "commit", "-q", "-m", "add icon")
	binFix = git(t, dir, "rev-parse", "HEAD")
	git(t, dir, "checkout", "-q", "-")
	return dir, textFix, binFix
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestGitVCS_CloneResetDescribe(t *testing.T) {
	upstream, _, _ := newUpstream(t)
	vcs := NewGitVCS()
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "work")
	if err := vcs.Clone(ctx, upstream, dir); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if err := vcs.Reset(ctx, dir, "wine-1.0"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	got, err := vcs.Describe(ctx, dir)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if got != "wine-1.0" {
		t.Errorf("Describe = %q, want wine-1.0", got)
	}

	if err := vcs.Reset(ctx, dir, "@{upstream}"); err != nil {
		t.Fatalf("Reset to upstream failed: %v", err)
	}
	v, described, err := version.Normalize(ctx, "", Describer(vcs, dir))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if !described || v.String() != "1.1" {
		t.Errorf("Normalize = %v, %v, want 1.1 described", v, described)
	}

	if err := vcs.Reset(ctx, dir, "wine-9.9"); err == nil {
		t.Error("Reset to a missing tag succeeded")
	}
}

func TestGitVCS_CherryPick(t *testing.T) {
	upstream, textFix, _ := newUpstream(t)
	vcs := NewGitVCS()
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "work")
	if err := vcs.Clone(ctx, upstream, dir); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	tagged := git(t, dir, "rev-parse", "wine-1.0")
	if ok, err := vcs.Contains(ctx, dir, tagged); err != nil || !ok {
		t.Errorf("Contains(wine-1.0) = %v, %v, want true", ok, err)
	}
	if ok, _ := vcs.Contains(ctx, dir, textFix); ok {
		t.Error("Contains reports a commit that is only on a remote branch")
	}
	if ok, _ := vcs.Contains(ctx, dir, "0000000000000000000000000000000000000000"); ok {
		t.Error("Contains reports an unknown commit")
	}

	if err := vcs.CherryPick(ctx, dir, textFix); err != nil {
		t.Fatalf("CherryPick failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "fix.txt"))
	if err != nil || string(data) != "fixed\n" {
		t.Errorf("fix.txt = %q, %v", data, err)
	}
	msg := git(t, dir, "log", "-1", "--format=%B")
	if !strings.Contains(msg, "cherry picked from commit "+textFix) {
		t.Errorf("commit message lacks the origin line:\n%s", msg)
	}
}

func TestGitVCS_ApplyBinary(t *testing.T) {
	upstream, textFix, binFix := newUpstream(t)
	vcs := NewGitVCS()
	ctx := context.Background()

	dir := filepath.Join(t.TempDir(), "work")
	if err := vcs.Clone(ctx, upstream, dir); err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if err := vcs.CherryPick(ctx, dir, textFix); err != nil {
		t.Fatalf("CherryPick failed: %v", err)
	}
	if err := vcs.ApplyBinary(ctx, dir, binFix); err != nil {
		t.Fatalf("ApplyBinary failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "icon.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("\x00\x01\x02\xff\x00")) {
		t.Errorf("icon.bin = %x", data)
	}
}

func TestGitVCS_Tags(t *testing.T) {
	upstream, _, _ := newUpstream(t)
	tags, err := NewGitVCS().Tags(context.Background(), upstream)
	if err != nil {
		t.Fatalf("Tags failed: %v", err)
	}
	releases := ReleaseTags(tags)
	if len(releases) != 2 || releases[0].String() != "1.0" || releases[1].String() != "1.1" {
		t.Errorf("ReleaseTags(%v) = %v", tags, releases)
	}
}

func TestWithGitPath(t *testing.T) {
	vcs := NewGitVCS(WithGitPath(filepath.Join(t.TempDir(), "no-such-git")))
	if _, err := vcs.Describe(context.Background(), t.TempDir()); err == nil {
		t.Error("Describe succeeded with a missing git binary")
	}
}

func TestReleaseTags(t *testing.T) {
	got := ReleaseTags([]string{"wine-1.10", "v1.9", "wine-1.9.2", "wine-1.2-rc3", "wine-1.2", "wine-junk"})
	var s []string
	for _, v := range got {
		s = append(s, v.String())
	}
	want := "1.2-rc3 1.2 1.9.2 1.10"
	if strings.Join(s, " ") != want {
		t.Errorf("ReleaseTags = %v, want %s", s, want)
	}
}
