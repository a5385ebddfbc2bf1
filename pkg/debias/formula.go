package debias

import "math"

// Ricedebias returns a bias-corrected estimate of the underlying signal
// magnitude given a measured magnitude and the Rician noise scale sigma.
//
// Under Rician noise the second moment of the measured magnitude m relates
// to the true magnitude nu by E[m^2] = nu^2 + 2*sigma^2, so the estimate is
// sqrt(m^2 - 2*sigma^2), floored at zero where the measurement falls below
// the noise floor.
//
// The function is pure and safe for concurrent use. Callers guard the
// sigma <= 0 case; it is never invoked for non-positive noise levels.
func Ricedebias(signal, sigma float64) float64 {
	m2 := signal*signal - 2*sigma*sigma
	if m2 <= 0 {
		return 0
	}
	return math.Sqrt(m2)
}
