package trace

import "github.com/chewxy/math32"

// Downsample reduces samples to at most maxPoints for display. Each output
// point is the sample of largest magnitude in its bucket so narrow pulses
// survive decimation; buckets holding only gaps yield NaN.
// Destination-based: reuses dst if it has sufficient capacity, otherwise allocates new.
func Downsample(dst []float32, samples []float32, maxPoints int) []float32 {
	if maxPoints <= 0 {
		return dst[:0]
	}
	if len(samples) <= maxPoints {
		if cap(dst) >= len(samples) {
			dst = dst[:len(samples)]
		} else {
			dst = make([]float32, len(samples))
		}
		copy(dst, samples)
		return dst
	}

	if cap(dst) >= maxPoints {
		dst = dst[:0]
	} else {
		dst = make([]float32, 0, maxPoints)
	}

	step := float64(len(samples)) / float64(maxPoints)

	for i := range maxPoints {
		from := int(float64(i) * step)
		to := min(int(float64(i+1)*step), len(samples))
		peak := math32.NaN()
		for _, v := range samples[from:to] {
			if math32.IsNaN(v) {
				continue
			}
			if math32.IsNaN(peak) || math32.Abs(v) > math32.Abs(peak) {
				peak = v
			}
		}
		dst = append(dst, peak)
	}

	return dst
}
