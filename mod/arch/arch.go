// Package arch names the CPU families Wine can be built for.
package arch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedArchitecture is returned for machine names outside the
// recognized families.
var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

// Arch is a target CPU family. The zero value means "no architecture".
type Arch int

const (
	None Arch = iota
	X86_64
	I386
	ARM
	AArch64
)

var names = [...]string{
	None:    "",
	X86_64:  "x86_64",
	I386:    "i386",
	ARM:     "arm",
	AArch64: "aarch64",
}

// String returns the canonical name, as used in directory names and in
// Wine's "<arch>-windows" library directories.
func (a Arch) String() string {
	if !a.Valid() && a != None {
		return fmt.Sprintf("Arch(%d)", int(a))
	}
	return names[a]
}

// Valid reports whether a is one of the recognized families.
func (a Arch) Valid() bool {
	return a > None && int(a) < len(names)
}

// Is64Bit reports whether a is a 64-bit family.
func (a Arch) Is64Bit() bool {
	return a == X86_64 || a == AArch64
}

// Is32Bit reports whether a is a 32-bit family.
func (a Arch) Is32Bit() bool {
	return a == I386 || a == ARM
}

// Companion returns the 32-bit family that runs alongside a 64-bit one,
// or None.
func (a Arch) Companion() Arch {
	switch a {
	case X86_64:
		return I386
	case AArch64:
		return ARM
	}
	return None
}

// Parse maps a machine name, as printed by "uname -m" or as the first
// field of a "gcc -dumpmachine" triplet, to its family.
func Parse(machine string) (Arch, error) {
	m := strings.ToLower(strings.TrimSpace(machine))
	switch m {
	case "x86_64", "amd64", "x64":
		return X86_64, nil
	case "i386", "i486", "i586", "i686", "x86", "386":
		return I386, nil
	case "aarch64", "arm64", "aarch64_be":
		return AArch64, nil
	}
	if strings.HasPrefix(m, "arm") {
		return ARM, nil
	}
	return None, fmt.Errorf("%w: %q", ErrUnsupportedArchitecture, machine)
}

// MarshalText implements encoding.TextMarshaler.
func (a Arch) MarshalText() ([]byte, error) {
	if !a.Valid() && a != None {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedArchitecture, int(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Arch) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = None
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
