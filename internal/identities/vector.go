package identities

import (
	"fmt"
	"math"
)

// Prepared is a validated copy of a descriptor with its norm precomputed.
// Preparing is pure and safe to run concurrently outside the registry lock.
type Prepared struct {
	vec  []float64
	norm float64
}

// Dim returns the descriptor dimension.
func (p Prepared) Dim() int {
	return len(p.vec)
}

// Descriptor returns the prepared vector. Callers must not modify it.
func (p Prepared) Descriptor() []float64 {
	return p.vec
}

// Prepare validates descriptor and returns a private copy.
func Prepare(descriptor []float64) (Prepared, error) {
	if len(descriptor) == 0 {
		return Prepared{}, fmt.Errorf("%w: empty", ErrInvalidDescriptor)
	}

	vec := make([]float64, len(descriptor))
	var sum float64
	for i, v := range descriptor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Prepared{}, fmt.Errorf("%w: non-finite component at %d", ErrInvalidDescriptor, i)
		}
		vec[i] = v
		sum += v * v
	}

	norm := math.Sqrt(sum)
	if norm == 0 {
		return Prepared{}, fmt.Errorf("%w: zero norm", ErrInvalidDescriptor)
	}

	return Prepared{vec: vec, norm: norm}, nil
}

// Cosine returns the cosine similarity of a and b. Both must be non-zero and of
// equal length.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func similarity(p Prepared, ref []float64, refNorm float64) float64 {
	var dot float64
	for i := range p.vec {
		dot += p.vec[i] * ref[i]
	}
	return dot / (p.norm * refNorm)
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
