package proptest

// =============================================================================
// Selection Combinators
// =============================================================================

// Pick returns a random element of a non-empty slice.
func Pick[T any](g *Generator, from []T) T {
	if len(from) == 0 {
		panic("proptest: Pick from empty slice")
	}
	return from[g.Intn(len(from))]
}

// Weighted returns values[i] with probability weights[i]/sum(weights).
// Values with zero weight are never returned.
func Weighted[T any](g *Generator, weights []float64, values []T) T {
	if len(values) == 0 || len(weights) != len(values) {
		panic("proptest: Weighted needs one weight per value")
	}

	var total float64
	for _, w := range weights {
		if w < 0 {
			panic("proptest: Weighted with negative weight")
		}
		total += w
	}

	point := g.Float64() * total
	for i, w := range weights {
		if point < w {
			return values[i]
		}
		point -= w
	}

	// rounding left point past the end; fall back to the last live value
	for i := len(values) - 1; i > 0; i-- {
		if weights[i] > 0 {
			return values[i]
		}
	}
	return values[0]
}

// Sample returns n distinct elements of from, in random order.
func Sample[T any](g *Generator, from []T, n int) []T {
	if n < 0 || n > len(from) {
		panic("proptest: Sample size out of range")
	}
	out := make([]T, n)
	for i, j := range g.rng.Perm(len(from))[:n] {
		out[i] = from[j]
	}
	return out
}

// =============================================================================
// Collection Generators
// =============================================================================

// SliceN returns between minN and maxN values made by gen.
func SliceN[T any](g *Generator, minN, maxN int, gen func(*Generator) T) []T {
	out := make([]T, g.IntRange(minN, maxN))
	for i := range out {
		out[i] = gen(g)
	}
	return out
}
