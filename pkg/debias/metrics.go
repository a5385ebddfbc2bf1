package debias

import (
	"gonum.org/v1/gonum/stat"

	"ricedebias/pkg/noise"
)

// computeMetrics gathers the foreground signal before and after correction
// and summarizes the run. Called once after the parallel phase.
func (d *Debiaser) computeMetrics() {
	in, out := d.input, d.output
	hasMask := !d.mask.IsEmpty()

	before := make([]float64, 0, in.NVoxels())
	after := make([]float64, 0, in.NVoxels())
	for t := 0; t < in.Nt; t++ {
		for k := 0; k < in.Nz; k++ {
			for j := 0; j < in.Ny; j++ {
				for i := 0; i < in.Nx; i++ {
					if hasMask && !(d.mask.At3(i, j, k) > 0) {
						continue
					}
					before = append(before, in.At(i, j, k, t))
					after = append(after, out.At(i, j, k, t))
				}
			}
		}
	}

	m := Metrics{
		VoxelsTotal:      in.NVoxels(),
		VoxelsForeground: len(before),
	}
	switch d.spec.Kind() {
	case noise.Map:
		m.VoxelsCorrected = len(before)
	case noise.Scalar:
		if d.spec.Scalar() > 0 {
			m.VoxelsCorrected = len(before)
		}
	}
	if len(before) > 0 {
		m.MeanInput = stat.Mean(before, nil)
		m.MeanOutput = stat.Mean(after, nil)
		m.MeanBiasRemoved = m.MeanInput - m.MeanOutput
	}
	d.metrics = m
}
