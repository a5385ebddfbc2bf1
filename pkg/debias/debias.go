// Package debias implements the Rician bias correction pipeline: it validates
// that the input volume, optional foreground mask and optional noise map share
// one voxel grid, resolves the noise-handling policy, and applies the
// correction to every foreground voxel in parallel.
package debias

import (
	"fmt"
	"runtime"
	"sync"

	"ricedebias/pkg/noise"
	"ricedebias/pkg/volume"
)

// DefaultChunkSize is the number of series indices handed to a worker at a
// time when partitioning the outermost loop axis.
const DefaultChunkSize = 10

// Params holds the correction run configuration. It is assembled once by the
// command line layer and read-only afterwards.
type Params struct {
	// InputPath is the 4D diffusion-weighted input volume.
	InputPath string

	// OutputPath is where the corrected volume is written.
	OutputPath string

	// MaskPath selects the foreground mask volume; "" or "none" means no
	// mask, i.e. every voxel is foreground.
	MaskPath string

	// RicianArg is the raw --rician argument: "none", a scalar noise level,
	// or the path of a noise map volume.
	RicianArg string

	// MaxDiff is the maximum diffusivity in mm²/s. It is parsed and
	// validated for command-line compatibility but the correction step
	// does not consume it.
	MaxDiff float64

	// NumCores is the number of worker goroutines; 0 means all CPUs.
	NumCores int

	// ChunkSize is the series-axis partition size; 0 means DefaultChunkSize.
	ChunkSize int

	// Verbose enables progress output on stdout.
	Verbose bool
}

// Metrics summarizes a completed correction run.
type Metrics struct {
	// VoxelsTotal is the number of cells in the 4D grid.
	VoxelsTotal int

	// VoxelsForeground is the number of cells inside the mask.
	VoxelsForeground int

	// VoxelsCorrected is the number of cells the correction formula ran on.
	VoxelsCorrected int

	// MeanInput and MeanOutput are the foreground means before and after
	// correction; MeanBiasRemoved is their difference.
	MeanInput       float64
	MeanOutput      float64
	MeanBiasRemoved float64
}

// Debiaser runs the correction pipeline: load, validate, correct, save.
type Debiaser struct {
	params *Params

	input  *volume.Volume
	mask   *volume.Volume
	spec   noise.Spec
	output *volume.Volume

	metrics Metrics
}

// NewDebiaser creates a pipeline instance for the given parameters.
func NewDebiaser(params *Params) *Debiaser {
	return &Debiaser{params: params}
}

// Process runs the complete pipeline. All inputs are loaded and validated
// before the output volume is allocated, so a geometry mismatch can never
// leave a partial output file behind.
func (d *Debiaser) Process() error {
	if err := d.loadInputs(); err != nil {
		return err
	}

	if d.params.Verbose {
		fmt.Printf("Loaded %dx%dx%dx%d volume, noise specification: %s\n",
			d.input.Nx, d.input.Ny, d.input.Nz, d.input.Nt, d.spec.Kind())
	}

	d.output = Correct(d.input, d.mask, d.spec, d.params.NumCores, d.params.ChunkSize)
	d.computeMetrics()

	if err := d.output.Save(d.params.OutputPath); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// loadInputs reads the input, mask and noise volumes and fails fast on any
// geometry incompatibility.
func (d *Debiaser) loadInputs() error {
	input, err := volume.Load(d.params.InputPath)
	if err != nil {
		return fmt.Errorf("failed to load input: %w", err)
	}
	d.input = input

	d.mask = &volume.Volume{}
	if d.params.MaskPath != "" && d.params.MaskPath != "none" {
		mask, err := volume.Load(d.params.MaskPath)
		if err != nil {
			return fmt.Errorf("failed to load mask: %w", err)
		}
		if err := volume.CheckCompatible(input, mask); err != nil {
			return err
		}
		d.mask = mask
	}

	spec, err := noise.Resolve(d.params.RicianArg, volume.Load)
	if err != nil {
		return err
	}
	if spec.Kind() == noise.Map {
		if err := volume.CheckCompatible(input, spec.Map()); err != nil {
			return err
		}
	}
	d.spec = spec
	return nil
}

// GetMetrics returns the run summary. Valid after Process.
func (d *Debiaser) GetMetrics() Metrics {
	return d.metrics
}

// GetOutput returns the corrected volume. Valid after Process.
func (d *Debiaser) GetOutput() *volume.Volume {
	return d.output
}

// Correct applies the noise correction to every foreground cell of input and
// returns a freshly allocated output volume with input's grid geometry.
// Background cells keep the zero fill of the allocation.
//
// The series axis is split into contiguous chunks of chunkSize indices which
// fan out to workers goroutines; inside a chunk the spatial axes run
// sequentially. Write targets are disjoint per cell, the inputs are read-only,
// so the loop body needs no synchronization and the result is identical for
// any worker count.
func Correct(input, mask *volume.Volume, spec noise.Spec, workers, chunkSize int) *volume.Volume {
	output := volume.NewLike(input)

	if workers < 1 {
		workers = runtime.NumCPU()
	}
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}

	type chunk struct {
		t0, t1 int
	}
	chunks := make(chan chunk, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range chunks {
				correctRange(input, mask, spec, output, c.t0, c.t1)
			}
		}()
	}

	for t0 := 0; t0 < input.Nt; t0 += chunkSize {
		t1 := t0 + chunkSize
		if t1 > input.Nt {
			t1 = input.Nt
		}
		chunks <- chunk{t0, t1}
	}
	close(chunks)
	wg.Wait()

	return output
}

// correctRange processes series indices [t0, t1) single-threaded.
func correctRange(input, mask *volume.Volume, spec noise.Spec, output *volume.Volume, t0, t1 int) {
	hasMask := !mask.IsEmpty()

	for t := t0; t < t1; t++ {
		for k := 0; k < input.Nz; k++ {
			for j := 0; j < input.Ny; j++ {
				for i := 0; i < input.Nx; i++ {
					if hasMask && !(mask.At3(i, j, k) > 0) {
						continue
					}
					value := input.At(i, j, k, t)
					switch spec.Kind() {
					case noise.Map:
						value = Ricedebias(value, spec.Map().At3(i, j, k))
					case noise.Scalar:
						if sigma := spec.Scalar(); sigma > 0 {
							value = Ricedebias(value, sigma)
						}
					}
					output.Set(i, j, k, t, value)
				}
			}
		}
	}
}
