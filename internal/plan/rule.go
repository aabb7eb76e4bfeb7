// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plan

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/goplus/winebuild/mod/arch"
	"github.com/goplus/winebuild/mod/version"
)

// ErrInvalidRule is returned by Validate for a malformed rule table.
var ErrInvalidRule = errors.New("invalid fixup rule")

// Interval is the half-open version range [Min, Max). A zero bound is
// unbounded on its side.
type Interval struct {
	Min version.Version
	Max version.Version
}

// Since returns the interval [min, ∞).
func Since(min string) Interval {
	return Interval{Min: version.MustParse(min)}
}

// Before returns the interval (-∞, max).
func Before(max string) Interval {
	return Interval{Max: version.MustParse(max)}
}

// Between returns the interval [min, max).
func Between(min, max string) Interval {
	return Interval{Min: version.MustParse(min), Max: version.MustParse(max)}
}

// Bounded reports whether either side of i is bounded.
func (i Interval) Bounded() bool {
	return !i.Min.IsZero() || !i.Max.IsZero()
}

// Contains reports whether v lies in i. The zero version lies only in
// the fully unbounded interval. Bounds compare releases, so "1.7" and
// "1.7.0" always fall on the same side.
func (i Interval) Contains(v version.Version) bool {
	if v.IsZero() {
		return !i.Bounded()
	}
	if !i.Min.IsZero() && v.CompareRelease(i.Min) < 0 {
		return false
	}
	if !i.Max.IsZero() && v.CompareRelease(i.Max) >= 0 {
		return false
	}
	return true
}

func (i Interval) String() string {
	if !i.Bounded() {
		return "*"
	}
	return fmt.Sprintf("[%s, %s)", i.Min, i.Max)
}

// Feature is a set of toolchain toggles a rule can depend on.
type Feature uint

const (
	Mscoree Feature = 1 << iota // build Wine-Mono support
	Tests                       // build the conformance tests
	NoPIC                       // build without position independent code
	Cross                       // cross-compiling with a prefixed toolchain
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{Mscoree, "mscoree"},
	{Tests, "tests"},
	{NoPIC, "nopic"},
	{Cross, "cross"},
}

func (f Feature) String() string {
	var names []string
	for _, fn := range featureNames {
		if f&fn.f != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "+")
}

// ActionKind enumerates what a fixup does.
type ActionKind int

const (
	Patch            ActionKind = iota + 1 // cherry-pick a commit
	BinaryPatch                            // binary-safe application of a commit
	Configure                              // append a configure flag
	DisableSubsystem                       // append --disable-<name>
	SetEnv                                 // overwrite an environment key
	AppendEnv                              // append to an environment key
)

var kindNames = map[ActionKind]string{
	Patch:            "patch",
	BinaryPatch:      "binary-patch",
	Configure:        "configure",
	DisableSubsystem: "disable",
	SetEnv:           "set-env",
	AppendEnv:        "append-env",
}

func (k ActionKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ActionKind(%d)", int(k))
}

// sourceLevel reports whether k changes the source tree rather than one leg.
func (k ActionKind) sourceLevel() bool {
	return k == Patch || k == BinaryPatch
}

// Action is one step of a fixup. Value may reference resolver variables
// as ${NAME}; an Optional action is dropped when a referenced variable
// is empty.
type Action struct {
	Kind     ActionKind
	Ref      string // commit for Patch and BinaryPatch
	Key      string // environment key for SetEnv and AppendEnv
	Value    string
	Optional bool
}

// CherryPick returns a Patch action for commit ref.
func CherryPick(ref string) Action { return Action{Kind: Patch, Ref: ref} }

// BinaryCherryPick returns a BinaryPatch action for commit ref.
func BinaryCherryPick(ref string) Action { return Action{Kind: BinaryPatch, Ref: ref} }

// Flag returns a Configure action.
func Flag(flag string) Action { return Action{Kind: Configure, Value: flag} }

// Disable returns a DisableSubsystem action.
func Disable(subsystem string) Action { return Action{Kind: DisableSubsystem, Value: subsystem} }

// Set returns a SetEnv action.
func Set(key, value string) Action { return Action{Kind: SetEnv, Key: key, Value: value} }

// Append returns an AppendEnv action.
func Append(key, value string) Action { return Action{Kind: AppendEnv, Key: key, Value: value} }

// IfSet marks a as Optional.
func (a Action) IfSet() Action {
	a.Optional = true
	return a
}

func (a Action) String() string {
	var s string
	switch a.Kind {
	case Patch, BinaryPatch:
		s = a.Kind.String() + " " + a.Ref
	case Configure:
		s = a.Kind.String() + " " + a.Value
	case DisableSubsystem:
		s = a.Kind.String() + " " + a.Value
	default:
		s = a.Kind.String() + " " + a.Key + "=" + a.Value
	}
	if a.Optional {
		s += " (if set)"
	}
	return s
}

// Rule is one entry of the fixup table.
type Rule struct {
	Name     string
	Note     string // bug report or upstream reference
	Interval Interval
	Variants []Variant   // empty means every variant
	Arches   []arch.Arch // empty means every leg
	Requires Feature     // all of these must be enabled
	Unless   Feature     // none of these may be enabled
	Exclude  []version.Version
	Actions  []Action
}

// applies reports whether r fires for a plan, ignoring the leg filter.
func (r *Rule) applies(variant Variant, v version.Version, features Feature) bool {
	if !r.Interval.Contains(v) {
		return false
	}
	if len(r.Variants) > 0 && !slices.Contains(r.Variants, variant) {
		return false
	}
	if features&r.Requires != r.Requires || features&r.Unless != 0 {
		return false
	}
	return !slices.ContainsFunc(r.Exclude, func(x version.Version) bool {
		return x.CompareRelease(v) == 0
	})
}

// appliesTo reports whether r fires for the leg a.
func (r *Rule) appliesTo(a arch.Arch) bool {
	return len(r.Arches) == 0 || slices.Contains(r.Arches, a)
}

// appendOnly lists keys holding flag lists. They only ever grow.
var appendOnly = []string{"CFLAGS", "CXXFLAGS", "CPPFLAGS", "LDFLAGS"}

var commitRE = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

// Validate checks the table for well-formedness. It does not detect
// overlapping rules; keeping intervals disjoint per subsystem is up to the
// table author.
func Validate(rules []Rule) error {
	var errs []error
	bad := func(r *Rule, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w %q: %s", ErrInvalidRule, r.Name, fmt.Sprintf(format, args...)))
	}
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("%w #%d: missing name", ErrInvalidRule, i))
		} else if seen[r.Name] {
			bad(r, "duplicate name")
		}
		seen[r.Name] = true

		iv := r.Interval
		if !iv.Min.IsZero() && !iv.Max.IsZero() && iv.Min.CompareRelease(iv.Max) >= 0 {
			bad(r, "empty interval %s", iv)
		}
		for _, x := range r.Exclude {
			if x.IsZero() || !iv.Contains(x) {
				bad(r, "excluded version %q outside %s", x, iv)
			}
		}
		for _, v := range r.Variants {
			if !v.Valid() {
				bad(r, "unknown variant %q", v)
			}
		}
		for _, a := range r.Arches {
			if !a.Valid() {
				bad(r, "unknown architecture %v", a)
			}
		}
		if r.Requires&r.Unless != 0 {
			bad(r, "feature %v both required and excluded", r.Requires&r.Unless)
		}
		if len(r.Actions) == 0 {
			bad(r, "no actions")
		}
		for _, a := range r.Actions {
			switch a.Kind {
			case Patch, BinaryPatch:
				if !commitRE.MatchString(a.Ref) {
					bad(r, "patch ref %q is not a commit id", a.Ref)
				}
				if len(r.Arches) > 0 {
					bad(r, "patch %s cannot be limited to architectures", a.Ref)
				}
			case Configure, DisableSubsystem:
				if a.Value == "" {
					bad(r, "empty %v action", a.Kind)
				}
			case SetEnv, AppendEnv:
				if a.Key == "" {
					bad(r, "%v action without key", a.Kind)
				}
				if a.Kind == SetEnv && slices.Contains(appendOnly, a.Key) {
					bad(r, "%s may only be appended to", a.Key)
				}
			default:
				bad(r, "unknown action kind %v", a.Kind)
			}
		}
	}
	return errors.Join(errs...)
}
