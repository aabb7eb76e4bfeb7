package plan

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// Workspace directory layout:
//
//	workspace/
//	  mainline-src/                       # unversioned upstream clone, reused for checkouts
//	  mainline-src-<version>/             # mainline tree at <version>
//	  staging-patches-<version>/          # staging patch set (staging only)
//	  <variant>-src-<version>/            # tree the fixups are applied to
//	  <variant>-build-<version>-<arch>/   # one build tree per leg
//	  <variant>-install-<version>-<arch>/ # install root shared by both legs
//
// Without a pinned version the "-<version>" part is left out.

// LibraryLayout names the directories, relative to the install root, that
// receive the Windows side (PE) and the native side of the libraries.
type LibraryLayout struct {
	PEDir     string `json:"pe_dir" yaml:"pe_dir"`
	NativeDir string `json:"native_dir" yaml:"native_dir"`
}

// ResolveLibraryLayout returns where a build of version v for a installs
// its libraries. Releases before 6.0 put everything into lib/wine;
// later ones split by architecture and kind. The zero version is taken
// to be a current tree.
func ResolveLibraryLayout(v version.Version, a arch.Arch) LibraryLayout {
	if !v.IsZero() && v.CompareRelease(segregatedLayout) < 0 {
		return LibraryLayout{PEDir: "lib/wine", NativeDir: "lib/wine"}
	}
	return LibraryLayout{
		PEDir:     path.Join("lib/wine", a.String()+"-windows"),
		NativeDir: path.Join("lib/wine", a.String()+"-unix"),
	}
}

// Sources locates the source trees of a plan.
type Sources struct {
	LocalClone     string `json:"local_clone" yaml:"local_clone"`
	Mainline       string `json:"mainline" yaml:"mainline"`
	Variant        string `json:"variant" yaml:"variant"`
	StagingPatches string `json:"staging_patches,omitempty" yaml:"staging_patches,omitempty"`
	MainlineRef    string `json:"mainline_ref,omitempty" yaml:"mainline_ref,omitempty"`
	StagingRef     string `json:"staging_ref,omitempty" yaml:"staging_ref,omitempty"`
}

// layout computes the workspace paths of one request.
type layout struct {
	workspace string
	variant   Variant
	suffix    string // "-<version>" or ""
}

func newLayout(req *Request) layout {
	l := layout{workspace: req.Workspace, variant: req.Variant}
	if req.pinned() {
		l.suffix = "-" + req.Version.String()
	}
	return l
}

func (l layout) dir(format string, args ...any) string {
	return filepath.Join(l.workspace, fmt.Sprintf(format, args...))
}

func (l layout) sources(req *Request) Sources {
	s := Sources{
		LocalClone: l.dir("mainline-src"),
		Mainline:   l.dir("mainline-src%s", l.suffix),
		Variant:    l.dir("%s-src%s", l.variant, l.suffix),
	}
	if req.pinned() {
		s.MainlineRef = req.Version.Tag()
	}
	if l.variant == Staging {
		s.StagingPatches = l.dir("staging-patches%s", l.suffix)
		if req.pinned() {
			s.StagingRef = req.Version.StagingTag()
		}
	}
	return s
}

func (l layout) buildDir(a arch.Arch) string {
	return l.dir("%s-build%s-%s", l.variant, l.suffix, a)
}

// installDir is the install root shared by all legs; the 64-bit
// architecture names it when there is one.
func (l layout) installDir(arch64, arch32 arch.Arch) string {
	switch {
	case arch64 != arch.None:
		return l.dir("%s-install%s-%s", l.variant, l.suffix, arch64)
	case arch32 != arch.None:
		return l.dir("%s-install%s-%s", l.variant, l.suffix, arch32)
	}
	return l.dir("%s-install%s", l.variant, l.suffix)
}

// CheckoutDir returns the unpinned tree of variant in workspace, the
// checkout a floating version is described from.
func CheckoutDir(workspace string, variant Variant) string {
	l := layout{workspace: workspace, variant: variant}
	return l.dir("%s-src", variant)
}
