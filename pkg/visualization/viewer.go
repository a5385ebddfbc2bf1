// Package visualization exports quality-control images of a corrected volume:
// 2D slices along each grid axis, intensity-windowed to the rendered frame
// and saved as JPEG files.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"ricedebias/pkg/volume"
)

// Viewer renders 2D slices of one series frame of a volume.
type Viewer struct {
	// vol is the volume being rendered
	vol *volume.Volume

	// frame is the series index to render
	frame int

	// lo and hi are the intensity window bounds for the rendered frame
	lo, hi float64
}

// NewViewer creates a viewer for the given series frame of vol. The intensity
// window is fixed to the frame's value range so all slices of a sequence share
// one grey scale.
func NewViewer(vol *volume.Volume, frame int) (*Viewer, error) {
	if vol.IsEmpty() {
		return nil, fmt.Errorf("cannot view an empty volume")
	}
	if frame < 0 || frame >= vol.Nt {
		return nil, fmt.Errorf("frame %d out of range [0, %d)", frame, vol.Nt)
	}

	v := &Viewer{vol: vol, frame: frame}
	v.lo, v.hi = frameRange(vol, frame)
	return v, nil
}

// frameRange scans one series frame for its minimum and maximum value.
func frameRange(vol *volume.Volume, frame int) (lo, hi float64) {
	lo = vol.At(0, 0, 0, frame)
	hi = lo
	for k := 0; k < vol.Nz; k++ {
		for j := 0; j < vol.Ny; j++ {
			for i := 0; i < vol.Nx; i++ {
				val := vol.At(i, j, k, frame)
				if val < lo {
					lo = val
				}
				if val > hi {
					hi = val
				}
			}
		}
	}
	return lo, hi
}

// grey maps a voxel value into the viewer's intensity window.
func (v *Viewer) grey(val float64) color.Gray16 {
	if v.hi <= v.lo {
		return color.Gray16{}
	}
	norm := (val - v.lo) / (v.hi - v.lo)
	if norm < 0 {
		norm = 0
	} else if norm > 1 {
		norm = 1
	}
	return color.Gray16{Y: uint16(norm * 65535)}
}

// ExtractSlice extracts a 2D slice of the rendered frame along the specified
// axis at the given grid position.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.vol
	var img *image.Gray16

	switch axis {
	case "x", "X":
		// Sagittal: JK plane at fixed i
		if position >= vol.Nx {
			return nil, fmt.Errorf("position %d exceeds extent %d", position, vol.Nx)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Ny, vol.Nz))
		for k := 0; k < vol.Nz; k++ {
			for j := 0; j < vol.Ny; j++ {
				img.SetGray16(j, k, v.grey(vol.At(position, j, k, v.frame)))
			}
		}

	case "y", "Y":
		// Coronal: IK plane at fixed j
		if position >= vol.Ny {
			return nil, fmt.Errorf("position %d exceeds extent %d", position, vol.Ny)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Nz))
		for k := 0; k < vol.Nz; k++ {
			for i := 0; i < vol.Nx; i++ {
				img.SetGray16(i, k, v.grey(vol.At(i, position, k, v.frame)))
			}
		}

	case "z", "Z":
		// Axial: IJ plane at fixed k
		if position >= vol.Nz {
			return nil, fmt.Errorf("position %d exceeds extent %d", position, vol.Nz)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Ny))
		for j := 0; j < vol.Ny; j++ {
			for i := 0; i < vol.Nx; i++ {
				img.SetGray16(i, j, v.grey(vol.At(i, j, position, v.frame)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves a sequence of slices along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Nx
	case "y", "Y":
		maxPos = v.vol.Ny
	case "z", "Z":
		maxPos = v.vol.Nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
