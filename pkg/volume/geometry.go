package volume

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MismatchClass identifies which part of the voxel grid geometry differs
// between two volumes.
type MismatchClass int

const (
	// ExtentMismatch means the spatial grid sizes differ.
	ExtentMismatch MismatchClass = iota
	// SpacingMismatch means the physical voxel sizes differ.
	SpacingMismatch
	// CoordFrameMismatch means the index-to-world transforms differ.
	CoordFrameMismatch
)

// MismatchError reports a geometry incompatibility between two named volumes.
type MismatchError struct {
	NameA, NameB string
	Class        MismatchClass
}

func (e *MismatchError) Error() string {
	switch e.Class {
	case SpacingMismatch:
		return fmt.Sprintf("the pixel sizes of ‘%s’ and ‘%s’ do not match", e.NameA, e.NameB)
	case CoordFrameMismatch:
		return fmt.Sprintf("the coordinate systems of ‘%s’ and ‘%s’ do not match", e.NameA, e.NameB)
	default:
		return fmt.Sprintf("‘%s’ and ‘%s’ do not match", e.NameA, e.NameB)
	}
}

// CheckCompatible verifies that a and b share the same spatial extents,
// voxel spacings and coordinate transform. Comparison is exact: volumes on
// grids that differ only by rounding are not considered interchangeable.
// Returns a *MismatchError naming both volumes on failure.
func CheckCompatible(a, b *Volume) error {
	if a.Nx != b.Nx || a.Ny != b.Ny || a.Nz != b.Nz {
		return &MismatchError{NameA: a.Name, NameB: b.Name, Class: ExtentMismatch}
	}
	if a.PixDim != b.PixDim {
		return &MismatchError{NameA: a.Name, NameB: b.Name, Class: SpacingMismatch}
	}
	if !mat.Equal(a.Affine, b.Affine) {
		return &MismatchError{NameA: a.Name, NameB: b.Name, Class: CoordFrameMismatch}
	}
	return nil
}

// Compatible reports whether a and b share an identical voxel grid.
func Compatible(a, b *Volume) bool {
	return CheckCompatible(a, b) == nil
}
