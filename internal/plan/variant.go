package plan

import (
	"errors"
	"fmt"
)

// ErrInvalidVariant is returned for variant names other than mainline,
// staging and custom.
var ErrInvalidVariant = errors.New("invalid variant")

// Variant selects the source tree flavor.
type Variant string

const (
	Mainline Variant = "mainline"
	Staging  Variant = "staging"
	Custom   Variant = "custom"
)

// Variants lists every variant in display order.
var Variants = []Variant{Mainline, Staging, Custom}

// ParseVariant validates s as a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q, must be one of %v", ErrInvalidVariant, s, Variants)
	}
	return v, nil
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	switch v {
	case Mainline, Staging, Custom:
		return true
	}
	return false
}

// NeedsVersion reports whether fixups for v can only be chosen with a
// concrete version. Staging and custom trees float, so the version must
// come from the user or from the checkout.
func (v Variant) NeedsVersion() bool {
	return v == Staging || v == Custom
}
