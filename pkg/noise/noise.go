// Package noise resolves the --rician command argument into one of three
// mutually exclusive noise-handling policies: no correction, a single scalar
// noise level for the whole volume, or a spatially-varying noise map.
package noise

import (
	"fmt"
	"strconv"

	"ricedebias/pkg/volume"
)

// Kind enumerates the noise specification variants.
type Kind int

const (
	// None applies no correction.
	None Kind = iota
	// Scalar applies a single noise level to every voxel.
	Scalar
	// Map applies a per-voxel noise level from a 3D volume.
	Map
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Map:
		return "map"
	default:
		return "none"
	}
}

// Spec is a resolved noise specification. Exactly one variant is active;
// construction through Resolve guarantees the invalid combinations
// (scalar and map at once) cannot be represented. Immutable once built.
type Spec struct {
	kind   Kind
	scalar float64
	vol    *volume.Volume
}

// Kind returns the active variant.
func (s Spec) Kind() Kind { return s.kind }

// Scalar returns the uniform noise level. Only meaningful for Kind() == Scalar.
func (s Spec) Scalar() float64 { return s.scalar }

// Map returns the noise map volume. Only meaningful for Kind() == Map.
func (s Spec) Map() *volume.Volume { return s.vol }

// NoneSpec returns the no-correction specification.
func NoneSpec() Spec { return Spec{kind: None} }

// ScalarSpec returns a uniform noise level specification.
func ScalarSpec(value float64) Spec { return Spec{kind: Scalar, scalar: value} }

// MapSpec returns a spatially-varying noise specification.
func MapSpec(v *volume.Volume) Spec { return Spec{kind: Map, vol: v} }

// Resolve classifies the raw --rician argument. The empty string and the
// literal "none" (case-sensitive) mean no correction. Anything that parses
// fully as a floating-point number is a scalar noise level — "12.5" is always
// the number 12.5, never a file named 12.5, even if such a file exists. Only
// a string that fails the numeric parse is treated as a path and loaded
// through load.
func Resolve(raw string, load func(string) (*volume.Volume, error)) (Spec, error) {
	if raw == "" || raw == "none" {
		return NoneSpec(), nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return ScalarSpec(v), nil
	}
	vol, err := load(raw)
	if err != nil {
		return Spec{}, fmt.Errorf("loading noise map ‘%s’: %w", raw, err)
	}
	return MapSpec(vol), nil
}
