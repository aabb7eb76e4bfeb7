// Package version parses Wine release numbers into totally ordered values.
//
// Accepted forms are "N.N" and "N.N.N", each optionally followed by a
// release-candidate suffix "-rcN". Mainline tags ("wine-6.0") and staging
// tags ("v6.0") are accepted as well; the prefix is dropped.
package version

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion is returned when a string matches no recognized scheme.
var ErrInvalidVersion = errors.New("invalid version")

var versionRE = regexp.MustCompile(`^(?:wine-|v)?(\d+)\.(\d+)(?:\.(\d+))?(?:-rc(\d+))?$`)

// A Version is a parsed Wine release number. The zero Version means
// "no version" and sorts before every parsed one.
type Version struct {
	Major    int
	Minor    int
	Patch    int
	HasPatch bool // whether the third segment was spelled out
	RC       int  // release candidate number, 0 for a final release
}

// Parse parses s into a Version.
func Parse(s string) (Version, error) {
	m := versionRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	var v Version
	var err error
	if v.Major, err = strconv.Atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	if v.Minor, err = strconv.Atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
	}
	if m[3] != "" {
		v.HasPatch = true
		if v.Patch, err = strconv.Atoi(m[3]); err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
		}
	}
	if m[4] != "" {
		if v.RC, err = strconv.Atoi(m[4]); err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s, err)
		}
		if v.RC == 0 {
			return Version{}, fmt.Errorf("%w: %q: release candidates start at rc1", ErrInvalidVersion, s)
		}
	}
	if v.IsZero() {
		return Version{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return v, nil
}

// MustParse is like Parse but panics on error. It is meant for tables
// initialized at package load time.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the zero Version.
func (v Version) IsZero() bool {
	return v == Version{}
}

// String returns the canonical spelling, e.g. "1.7.12", "6.0" or "1.4-rc1".
func (v Version) String() string {
	if v.IsZero() {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d", v.Major, v.Minor)
	if v.HasPatch {
		fmt.Fprintf(&b, ".%d", v.Patch)
	}
	if v.RC > 0 {
		fmt.Fprintf(&b, "-rc%d", v.RC)
	}
	return b.String()
}

// Tag returns the mainline git tag of v ("wine-6.0").
func (v Version) Tag() string {
	return "wine-" + v.String()
}

// StagingTag returns the staging git tag of v ("v6.0").
func (v Version) StagingTag() string {
	return "v" + v.String()
}

// semver maps v onto a semantic version. The rc number is kept as its
// own dot-separated identifier so that semver compares it numerically.
func (v Version) semver() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.RC > 0 {
		s += fmt.Sprintf("-rc.%d", v.RC)
	}
	return s
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal
// to, or after w. Compare returns 0 only for structurally equal values;
// a two-segment version sorts immediately before its ".0" spelling.
func (v Version) Compare(w Version) int {
	if v.IsZero() || w.IsZero() {
		switch {
		case v.IsZero() && w.IsZero():
			return 0
		case v.IsZero():
			return -1
		default:
			return +1
		}
	}
	if c := semver.Compare(v.semver(), w.semver()); c != 0 {
		return c
	}
	switch {
	case v.HasPatch == w.HasPatch:
		return 0
	case w.HasPatch:
		return -1
	default:
		return +1
	}
}

// CompareRelease is like Compare but ignores how many segments were
// spelled out, so "1.7" and "1.7.0" name the same release. Range bounds
// are checked with it.
func (v Version) CompareRelease(w Version) int {
	if v.IsZero() || w.IsZero() {
		return v.Compare(w)
	}
	return semver.Compare(v.semver(), w.semver())
}

// Less reports whether v sorts before w.
func (v Version) Less(w Version) bool {
	return v.Compare(w) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text yields
// the zero Version.
func (v *Version) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Describer reports the version of the currently checked-out tree, in the
// raw form the version control system prints it.
type Describer interface {
	Describe(ctx context.Context) (string, error)
}

// Normalize turns a user supplied version into a Version. An empty raw
// string asks d for the version of the checkout instead, in which case
// described is true. With an empty raw string and a nil d, Normalize
// returns the zero Version and no error.
func Normalize(ctx context.Context, raw string, d Describer) (v Version, described bool, err error) {
	if strings.TrimSpace(raw) != "" {
		v, err = Parse(raw)
		return v, false, err
	}
	if d == nil {
		return Version{}, false, nil
	}
	out, err := d.Describe(ctx)
	if err != nil {
		return Version{}, false, fmt.Errorf("describe checkout: %w", err)
	}
	v, err = Parse(out)
	if err != nil {
		return Version{}, false, err
	}
	return v, true, nil
}
