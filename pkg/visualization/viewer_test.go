package visualization

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"ricedebias/pkg/volume"
)

// newTestVolume builds a volume where each axial plane carries one value,
// rising with k, so slices are easy to tell apart.
func newTestVolume(nx, ny, nz, nt int) *volume.Volume {
	v := volume.New(nx, ny, nz, nt, [3]float64{1, 1, 1}, nil)
	for t := 0; t < nt; t++ {
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				for i := 0; i < nx; i++ {
					v.Set(i, j, k, t, float64(k+t*nz))
				}
			}
		}
	}
	return v
}

func TestNewViewer(t *testing.T) {
	vol := newTestVolume(10, 10, 5, 2)

	viewer, err := NewViewer(vol, 0)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}
	// Frame 0 holds values 0..4.
	if viewer.lo != 0 || viewer.hi != 4 {
		t.Errorf("Window = [%v, %v]; want [0, 4]", viewer.lo, viewer.hi)
	}

	if _, err := NewViewer(vol, 2); err == nil {
		t.Error("Expected an error for an out-of-range frame")
	}
	if _, err := NewViewer(&volume.Volume{}, 0); err == nil {
		t.Error("Expected an error for an empty volume")
	}
}

func TestExtractSlice(t *testing.T) {
	vol := newTestVolume(10, 8, 5, 1)
	viewer, err := NewViewer(vol, 0)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	t.Run("AxialDimensions", func(t *testing.T) {
		img, err := viewer.ExtractSlice("z", 2)
		if err != nil {
			t.Fatalf("Failed to extract z slice: %v", err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != 10 || bounds.Dy() != 8 {
			t.Errorf("Axial slice is %dx%d; want 10x8", bounds.Dx(), bounds.Dy())
		}
	})

	t.Run("AxialValues", func(t *testing.T) {
		// The top plane holds the window maximum, so it renders white.
		img, err := viewer.ExtractSlice("z", 4)
		if err != nil {
			t.Fatalf("Failed to extract z slice: %v", err)
		}
		if got := img.At(3, 3).(color.Gray16).Y; got != 65535 {
			t.Errorf("Top plane intensity = %d; want 65535", got)
		}

		img, err = viewer.ExtractSlice("z", 0)
		if err != nil {
			t.Fatalf("Failed to extract z slice: %v", err)
		}
		if got := img.At(3, 3).(color.Gray16).Y; got != 0 {
			t.Errorf("Bottom plane intensity = %d; want 0", got)
		}
	})

	t.Run("SagittalDimensions", func(t *testing.T) {
		img, err := viewer.ExtractSlice("x", 0)
		if err != nil {
			t.Fatalf("Failed to extract x slice: %v", err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != 8 || bounds.Dy() != 5 {
			t.Errorf("Sagittal slice is %dx%d; want 8x5", bounds.Dx(), bounds.Dy())
		}
	})

	t.Run("CoronalDimensions", func(t *testing.T) {
		img, err := viewer.ExtractSlice("y", 0)
		if err != nil {
			t.Fatalf("Failed to extract y slice: %v", err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != 10 || bounds.Dy() != 5 {
			t.Errorf("Coronal slice is %dx%d; want 10x5", bounds.Dx(), bounds.Dy())
		}
	})

	t.Run("InvalidAxis", func(t *testing.T) {
		if _, err := viewer.ExtractSlice("w", 0); err == nil {
			t.Error("Expected an error for an invalid axis")
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		if _, err := viewer.ExtractSlice("z", 5); err == nil {
			t.Error("Expected an error for an out-of-range position")
		}
		if _, err := viewer.ExtractSlice("z", -1); err == nil {
			t.Error("Expected an error for a negative position")
		}
	})
}

func TestSaveSliceSequence(t *testing.T) {
	vol := newTestVolume(4, 4, 3, 1)
	viewer, err := NewViewer(vol, 0)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "z")
	if err := viewer.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("SaveSliceSequence failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read output directory: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Saved %d slices; want 3", len(entries))
	}
}
