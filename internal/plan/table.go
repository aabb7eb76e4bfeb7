package plan

import (
	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// Resolver variables usable in action values.
const (
	VarTriplet        = "TRIPLET"          // cross toolchain triplet, e.g. aarch64-linux-gnu
	VarHostToolsDir   = "HOST_TOOLS_DIR"   // native build tree providing the build tools
	VarFloatABI       = "FLOAT_ABI"        // arm float ABI of the cross compiler
	VarFPU            = "FPU"              // arm FPU of the cross compiler
	VarPkgConfig      = "PKG_CONFIG"       // host pkg-config used while cross compiling
	VarClangCC        = "CLANGCC"          // clang C compiler override
	VarClangCXX       = "CLANGCXX"         // clang C++ compiler override
	VarClangCPP       = "CLANGCPP"         // clang preprocessor override
	VarJobs           = "JOBS"             // parallel make jobs
	VarWine64BuildDir = "WINE64_BUILD_DIR" // build tree of the 64-bit leg
	VarArch           = "ARCH"             // architecture of the current leg
)

// segregatedLayout is the first release installing libraries into
// per-architecture "<arch>-windows" and "<arch>-unix" directories.
var segregatedLayout = version.MustParse("6.0")

// WineRules is the fixup table for Wine, in evaluation order. Rules
// without an interval seed the defaults; the version gated corrections
// follow and may append to what the defaults set up.
var WineRules = []Rule{
	// Defaults derived from the toolchain options.
	{
		Name:    "mscoree-disabled",
		Unless:  Mscoree,
		Actions: []Action{Flag("--disable-mscoree")},
	},
	{
		Name:     "mscoree-enabled",
		Requires: Mscoree,
		Actions:  []Action{Flag("--enable-mscoree")},
	},
	{
		Name:    "tests-disabled",
		Unless:  Tests,
		Actions: []Action{Flag("--disable-tests")},
	},
	{
		Name:     "tests-enabled",
		Requires: Tests,
		Actions:  []Action{Flag("--enable-tests")},
	},
	{
		Name:     "cross-host",
		Note:     "--with-wine-tools must point at a build for the host system",
		Requires: Cross,
		Actions: []Action{
			Flag("--host=${TRIPLET}"),
			Flag("host_alias=${TRIPLET}"),
			Flag("--with-wine-tools=${HOST_TOOLS_DIR}"),
			Set("PKG_CONFIG", "${PKG_CONFIG}").IfSet(),
		},
	},
	{
		Name:     "arm-float-abi",
		Note:     "Wine defaults to softfp on arm, which breaks hardfp toolchains",
		Requires: Cross,
		Arches:   []arch.Arch{arch.ARM},
		Actions: []Action{
			Flag("--with-float-abi=${FLOAT_ABI}").IfSet(),
			Flag("--with-fpu=${FPU}").IfSet(),
		},
	},
	{
		Name:    "cflags-common",
		Actions: []Action{Append("CFLAGS", "-g -O2")},
	},
	{
		Name:    "aarch64-reserve-x18",
		Note:    "https://bugs.winehq.org/show_bug.cgi?id=38719",
		Arches:  []arch.Arch{arch.AArch64},
		Actions: []Action{Append("CFLAGS", "-ffixed-x18")},
	},
	{
		Name:   "aarch64-clang",
		Note:   "https://bugs.winehq.org/show_bug.cgi?id=38886, needs __builtin_ms_va_list",
		Arches: []arch.Arch{arch.AArch64},
		Actions: []Action{
			Set("CXX", "${CLANGCXX}").IfSet(),
			Set("CC", "${CLANGCC}").IfSet(),
			Set("CPP", "${CLANGCPP}").IfSet(),
		},
	},
	{
		Name:     "x86_64-nopic",
		Requires: NoPIC,
		Arches:   []arch.Arch{arch.X86_64},
		Actions:  []Action{Append("CFLAGS", "-fno-PIC -mcmodel=large")},
	},
	{
		Name:     "i386-nopic",
		Requires: NoPIC,
		Arches:   []arch.Arch{arch.I386},
		Actions:  []Action{Append("CFLAGS", "-fno-PIC")},
	},
	{
		Name:    "make-jobs",
		Actions: []Action{Set("MAKEFLAGS", "-j${JOBS} -l${JOBS}").IfSet()},
	},
	{
		Name:    "win64",
		Arches:  []arch.Arch{arch.X86_64, arch.AArch64},
		Actions: []Action{Flag("--enable-win64")},
	},
	{
		Name:    "wow64",
		Note:    "32-bit half of a shared WoW64 install",
		Arches:  []arch.Arch{arch.I386, arch.ARM},
		Actions: []Action{Flag("--with-wine64=${WINE64_BUILD_DIR}").IfSet()},
	},

	// Version gated corrections for old trees and new toolchains.
	{
		Name:     "bison-yylex",
		Note:     "https://bugs.winehq.org/show_bug.cgi?id=34329, 'YYLEX' undeclared in tools/wrc/parser.y",
		Interval: Between("1.3.28", "1.7.0"),
		Actions: []Action{
			CherryPick("3f98185fb8f88c181877e909ab1b6422fb9bca1e"),
			CherryPick("8fcac3b2bb8ce4cdbcffc126df779bf1be168882"),
			CherryPick("bda5a2ffb833b2824325bd9361b30dbaf5f78068"),
		},
	},
	{
		Name:     "bison-directives",
		Note:     "remaining bison directive fixes of bug 34329",
		Interval: Between("1.4", "1.7.0"),
		Actions: []Action{
			CherryPick("f86c46f6403fe338a544ab134bdf563c5b0934ae"),
			CherryPick("ffbe1ca986bd299e1fc894440849914378adbf5c"),
		},
	},
	{
		Name:     "bison-widl",
		Interval: Between("1.5.10", "1.7.0"),
		Actions:  []Action{CherryPick("c14e322a92a24e704836c5c12207c694a30e805f")},
	},
	{
		Name:     "msi-tablecolumns",
		Note:     "https://bugs.winehq.org/show_bug.cgi?id=36139, gcc 4.9+ breaks msi installers",
		Interval: Between("1.4", "1.7.20"),
		Actions:  []Action{CherryPick("deb274226783ab886bdb44876944e156757efe2b")},
	},
	{
		Name:     "wineps-cups",
		Note:     "too many cherry-picks across modules to fix PSDRV_DEVMODE and cupsGetPPD",
		Interval: Between("1.4", "1.5.10"),
		Actions:  []Action{Disable("wineps.drv")},
	},
	{
		Name:     "winspool-cups",
		Note:     "https://bugs.winehq.org/show_bug.cgi?id=40851, cupsGetPPD undeclared",
		Interval: Between("1.4", "1.9.14"),
		Actions:  []Action{CherryPick("10065d2acd0a9e1e852a8151c95569b99d1b3294")},
	},
	{
		Name:     "secur32-gnutls",
		Note:     "https://bugs.debian.org/cgi-bin/bugreport.cgi?bug=832275",
		Interval: Between("1.8", "1.9.13"),
		Actions:  []Action{CherryPick("bf5ac531a030bce9e798ab66bc53e84a65ca8fdb")},
	},
	{
		Name:     "winsock-invalid-socket",
		Note:     "INVALID_SOCKET redefined in include/winsock.h; backported to the 2.0.5 stable release",
		Interval: Between("1.7.6", "2.13"),
		Exclude:  []version.Version{version.MustParse("2.0.5")},
		Actions:  []Action{CherryPick("28173f06932edd85a64a952120d29b9bb1e762ea")},
	},
	{
		Name:     "gcc10-fcommon",
		Note:     "gcc 10 defaults to -fno-common; older trees define globals in headers",
		Interval: Before("5.0"),
		Actions:  []Action{Append("CFLAGS", "-fcommon")},
	},
}

var defaultResolver = MustNew(WineRules)
