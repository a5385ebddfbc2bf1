package volume

import (
	"errors"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// newTestVolume builds a volume with the given geometry and a simple ramp fill.
func newTestVolume(nx, ny, nz, nt int, pixdim [3]float64) *Volume {
	v := New(nx, ny, nz, nt, pixdim, nil)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

func TestEmptyState(t *testing.T) {
	var v Volume
	if !v.IsEmpty() {
		t.Error("Zero-value volume should be empty")
	}

	var nilVol *Volume
	if !nilVol.IsEmpty() {
		t.Error("Nil volume should report empty")
	}

	filled := New(2, 2, 2, 1, [3]float64{1, 1, 1}, nil)
	if filled.IsEmpty() {
		t.Error("Allocated volume should not be empty")
	}
}

func TestIndexOrder(t *testing.T) {
	v := New(3, 4, 5, 2, [3]float64{1, 1, 1}, nil)

	// The first axis varies fastest.
	if got := v.Index(1, 0, 0, 0); got != 1 {
		t.Errorf("Index(1,0,0,0) = %d; want 1", got)
	}
	if got := v.Index(0, 1, 0, 0); got != 3 {
		t.Errorf("Index(0,1,0,0) = %d; want 3", got)
	}
	if got := v.Index(0, 0, 1, 0); got != 12 {
		t.Errorf("Index(0,0,1,0) = %d; want 12", got)
	}
	if got := v.Index(0, 0, 0, 1); got != 60 {
		t.Errorf("Index(0,0,0,1) = %d; want 60", got)
	}

	v.Set(2, 3, 4, 1, 42)
	if got := v.At(2, 3, 4, 1); got != 42 {
		t.Errorf("At(2,3,4,1) = %v; want 42", got)
	}
}

func TestNewIsZeroFilled(t *testing.T) {
	v := New(4, 4, 4, 2, [3]float64{1, 1, 1}, nil)
	for i, val := range v.Data {
		if val != 0 {
			t.Fatalf("Data[%d] = %v; want 0", i, val)
		}
	}
}

func TestCheckCompatible(t *testing.T) {
	base := func() *Volume {
		v := New(4, 5, 6, 3, [3]float64{2, 2, 2.5}, nil)
		v.Name = "input.nii"
		return v
	}

	t.Run("EqualGrids", func(t *testing.T) {
		a, b := base(), base()
		if err := CheckCompatible(a, b); err != nil {
			t.Fatalf("Expected compatible grids, got: %v", err)
		}
		if !Compatible(a, b) {
			t.Error("Compatible returned false for equal grids")
		}
	})

	t.Run("ExtentMismatch", func(t *testing.T) {
		a := base()
		b := New(4, 5, 7, 3, a.PixDim, nil)
		b.Name = "mask.nii"
		var mismatch *MismatchError
		err := CheckCompatible(a, b)
		if !errors.As(err, &mismatch) || mismatch.Class != ExtentMismatch {
			t.Fatalf("Expected extent mismatch, got: %v", err)
		}
		if mismatch.NameA != "input.nii" || mismatch.NameB != "mask.nii" {
			t.Errorf("Mismatch names = %q, %q", mismatch.NameA, mismatch.NameB)
		}
	})

	t.Run("SpacingMismatch", func(t *testing.T) {
		a := base()
		b := New(4, 5, 6, 3, [3]float64{2, 2, 3}, a.Affine)
		var mismatch *MismatchError
		err := CheckCompatible(a, b)
		if !errors.As(err, &mismatch) || mismatch.Class != SpacingMismatch {
			t.Fatalf("Expected spacing mismatch, got: %v", err)
		}
	})

	t.Run("CoordFrameMismatch", func(t *testing.T) {
		a := base()
		rotated := mat.NewDense(4, 4, []float64{
			0, -2, 0, 0,
			2, 0, 0, 0,
			0, 0, 2.5, 0,
			0, 0, 0, 1,
		})
		b := New(4, 5, 6, 3, a.PixDim, rotated)
		var mismatch *MismatchError
		err := CheckCompatible(a, b)
		if !errors.As(err, &mismatch) || mismatch.Class != CoordFrameMismatch {
			t.Fatalf("Expected coordinate frame mismatch, got: %v", err)
		}
	})

	t.Run("SeriesExtentIgnored", func(t *testing.T) {
		// A 3D mask is compatible with a 4D input on the same spatial grid.
		a := base()
		b := New(4, 5, 6, 1, a.PixDim, a.Affine)
		if err := CheckCompatible(a, b); err != nil {
			t.Fatalf("Expected compatible grids, got: %v", err)
		}
	})
}

func TestCompatibleIsSymmetric(t *testing.T) {
	grids := []*Volume{
		New(4, 4, 4, 2, [3]float64{1, 1, 1}, nil),
		New(4, 4, 4, 2, [3]float64{1, 1, 2}, nil),
		New(4, 4, 5, 2, [3]float64{1, 1, 1}, nil),
		New(4, 4, 4, 2, [3]float64{1, 1, 1}, mat.NewDense(4, 4, []float64{
			1, 0, 0, 10,
			0, 1, 0, 0,
			0, 0, 1, 0,
			0, 0, 0, 1,
		})),
	}
	for i, a := range grids {
		for j, b := range grids {
			if Compatible(a, b) != Compatible(b, a) {
				t.Errorf("Compatible(%d,%d) != Compatible(%d,%d)", i, j, j, i)
			}
		}
	}
}

func TestNewLikeCopiesGeometry(t *testing.T) {
	src := newTestVolume(3, 4, 5, 2, [3]float64{2, 1.5, 1.25})
	out := NewLike(src)

	if err := CheckCompatible(src, out); err != nil {
		t.Fatalf("NewLike output incompatible with source: %v", err)
	}
	if out.Nt != src.Nt {
		t.Errorf("Nt = %d; want %d", out.Nt, src.Nt)
	}
	for i, val := range out.Data {
		if val != 0 {
			t.Fatalf("Data[%d] = %v; want 0", i, val)
		}
	}
}

func TestSaveLoadPreservesGeometry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vol.nii")

	src := newTestVolume(4, 3, 5, 2, [3]float64{2, 1.5, 1.25})
	if err := src.Save(path); err != nil {
		t.Fatalf("Failed to save volume: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load volume: %v", err)
	}

	if got.Nx != 4 || got.Ny != 3 || got.Nz != 5 || got.Nt != 2 {
		t.Fatalf("Extents = %d,%d,%d,%d; want 4,3,5,2", got.Nx, got.Ny, got.Nz, got.Nt)
	}
	if got.PixDim != src.PixDim {
		t.Errorf("PixDim = %v; want %v", got.PixDim, src.PixDim)
	}
	if !mat.Equal(got.Affine, src.Affine) {
		t.Errorf("Affine changed across save/load")
	}
	if err := CheckCompatible(src, got); err != nil {
		t.Errorf("Reloaded volume incompatible with source: %v", err)
	}
	for i := range got.Data {
		if float32(got.Data[i]) != float32(src.Data[i]) {
			t.Fatalf("Data[%d] = %v; want %v", i, got.Data[i], src.Data[i])
		}
	}
}

func TestSaveEmptyFails(t *testing.T) {
	var v Volume
	if err := v.Save(filepath.Join(t.TempDir(), "empty.nii")); err == nil {
		t.Fatal("Expected an error saving an empty volume")
	}
}
