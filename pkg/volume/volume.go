// Package volume provides the in-memory model of a NIfTI-backed scalar grid:
// up to four axes (three spatial plus a series axis), physical voxel spacing,
// and an affine index-to-world transform. An absent optional input (mask,
// noise map) is represented by the empty Volume, which is a first-class state
// rather than a nil pointer.
package volume

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"ricedebias/internal/nifti"
)

// Volume is a scalar grid over (i, j, k, t) with i varying fastest.
// A 3D volume has Nt == 1. The zero value is the empty Volume.
type Volume struct {
	// Data holds the voxel values in a flat array, index order
	// ((t*Nz + k)*Ny + j)*Nx + i.
	Data []float64

	// Nx, Ny, Nz are the spatial extents; Nt is the series extent.
	Nx, Ny, Nz, Nt int

	// PixDim is the physical voxel spacing along the spatial axes, in mm.
	PixDim [3]float64

	// Affine maps grid indices to physical coordinates (4x4, row-major).
	Affine *mat.Dense

	// Name identifies the volume in diagnostics, usually its file path.
	Name string

	// hdr retains the originating NIfTI header so that provenance fields
	// survive into volumes saved from this one. Nil for synthetic volumes.
	hdr *nifti.Header
}

// IsEmpty reports whether the volume carries no data, the state used for
// "mask not supplied" and "noise map not supplied".
func (v *Volume) IsEmpty() bool {
	return v == nil || v.Data == nil
}

// NVoxels returns the total cell count.
func (v *Volume) NVoxels() int {
	return v.Nx * v.Ny * v.Nz * v.Nt
}

// Index converts grid coordinates to the flat data index.
func (v *Volume) Index(i, j, k, t int) int {
	return ((t*v.Nz+k)*v.Ny+j)*v.Nx + i
}

// At returns the value at (i, j, k, t).
func (v *Volume) At(i, j, k, t int) float64 {
	return v.Data[v.Index(i, j, k, t)]
}

// Set writes the value at (i, j, k, t).
func (v *Volume) Set(i, j, k, t int, value float64) {
	v.Data[v.Index(i, j, k, t)] = value
}

// At3 returns the value at spatial position (i, j, k) of a 3D volume.
func (v *Volume) At3(i, j, k int) float64 {
	return v.Data[v.Index(i, j, k, 0)]
}

// Set3 writes the value at spatial position (i, j, k) of a 3D volume.
func (v *Volume) Set3(i, j, k int, value float64) {
	v.Data[v.Index(i, j, k, 0)] = value
}

// New allocates a volume with the given extents, spacing and transform.
// The data array is zero-filled, which is the default value background
// cells keep when processing never writes them.
func New(nx, ny, nz, nt int, pixdim [3]float64, affine *mat.Dense) *Volume {
	if affine == nil {
		affine = mat.NewDense(4, 4, []float64{
			pixdim[0], 0, 0, 0,
			0, pixdim[1], 0, 0,
			0, 0, pixdim[2], 0,
			0, 0, 0, 1,
		})
	}
	return &Volume{
		Data:   make([]float64, nx*ny*nz*nt),
		Nx:     nx,
		Ny:     ny,
		Nz:     nz,
		Nt:     nt,
		PixDim: pixdim,
		Affine: affine,
	}
}

// NewLike allocates a zero-filled volume with the spatial and series extents,
// voxel spacing, coordinate transform and header provenance of src.
func NewLike(src *Volume) *Volume {
	out := New(src.Nx, src.Ny, src.Nz, src.Nt, src.PixDim, src.Affine)
	if src.hdr != nil {
		hdr := *src.hdr
		out.hdr = &hdr
	}
	return out
}

// Load reads a NIfTI-1 volume from path.
func Load(path string) (*Volume, error) {
	img, err := nifti.Read(path)
	if err != nil {
		return nil, err
	}

	nx, ny, nz, nt := img.Hdr.Dims()
	dx, dy, dz := img.Hdr.PixDims()
	aff := img.Hdr.Affine()

	return &Volume{
		Data:   img.Data,
		Nx:     nx,
		Ny:     ny,
		Nz:     nz,
		Nt:     nt,
		PixDim: [3]float64{dx, dy, dz},
		Affine: mat.NewDense(4, 4, aff[:]),
		Name:   path,
		hdr:    &img.Hdr,
	}, nil
}

// Save writes the volume to path as a NIfTI-1 file. The header of the volume
// this one was derived from is reused when available, so spatial metadata and
// provenance fields carry over; extents are rewritten from the volume itself.
func (v *Volume) Save(path string) error {
	if v.IsEmpty() {
		return fmt.Errorf("%s: refusing to save an empty volume", path)
	}

	var hdr nifti.Header
	if v.hdr != nil {
		hdr = *v.hdr
	} else {
		hdr = nifti.NewHeader(v.Nx, v.Ny, v.Nz, v.Nt, v.PixDim[0], v.PixDim[1], v.PixDim[2])
	}
	ndim := int16(3)
	if v.Nt > 1 {
		ndim = 4
	}
	hdr.Dim = [8]int16{ndim, int16(v.Nx), int16(v.Ny), int16(v.Nz), int16(v.Nt), 1, 1, 1}

	img := &nifti.Image{Hdr: hdr, Data: v.Data}
	return img.Write(path)
}
