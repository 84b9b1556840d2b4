package models

import (
	"fmt"
)

// Array is an n-dimensional array of float64 values stored flat in
// row-major order. It is the currency of the conversion pipeline: RMS
// measurements arrive as an Array and every derived quantity (Sigma,
// d_size, the D estimates) preserves its shape.
type Array struct {
	// Shape holds the length of each dimension. An empty Shape denotes
	// a scalar, which still carries exactly one data element.
	Shape []int

	// Data is the flat row-major backing slice. Its length always
	// equals the product of Shape.
	Data []float64
}

// New allocates a zero-filled array with the given shape. Calling New
// with no dimensions produces a scalar.
func New(shape ...int) (*Array, error) {
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid dimension %d: must be positive", dim)
		}
		n *= dim
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Array{Shape: s, Data: make([]float64, n)}, nil
}

// Wrap builds an array around an existing data slice, validating that
// the slice length matches the product of the shape. The slice is not
// copied; the caller hands over ownership.
func Wrap(data []float64, shape ...int) (*Array, error) {
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("invalid dimension %d: must be positive", dim)
		}
		n *= dim
	}
	if len(data) != n {
		return nil, fmt.Errorf("data length %d does not match shape %v (want %d elements)",
			len(data), shape, n)
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Array{Shape: s, Data: data}, nil
}

// Scalar builds a zero-dimensional array holding a single value.
func Scalar(v float64) *Array {
	return &Array{Shape: []int{}, Data: []float64{v}}
}

// FromValues builds a one-dimensional array from the given values.
func FromValues(values ...float64) *Array {
	data := make([]float64, len(values))
	copy(data, values)
	return &Array{Shape: []int{len(values)}, Data: data}
}

// Validate checks that the shape and backing slice agree: every
// dimension positive and the data length equal to the shape product.
// Arrays built through the constructors always pass; hand-built ones
// may not.
func (a *Array) Validate() error {
	n := 1
	for _, dim := range a.Shape {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension %d: must be positive", dim)
		}
		n *= dim
	}
	if len(a.Data) != n {
		return fmt.Errorf("shape %v implies %d elements, data holds %d", a.Shape, n, len(a.Data))
	}
	return nil
}

// Len returns the total number of elements.
func (a *Array) Len() int {
	return len(a.Data)
}

// Rank returns the number of dimensions; a scalar has rank 0.
func (a *Array) Rank() int {
	return len(a.Shape)
}

// SameShape reports whether two arrays have identical shapes.
// A scalar only matches another scalar.
func (a *Array) SameShape(b *Array) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i, dim := range a.Shape {
		if b.Shape[i] != dim {
			return false
		}
	}
	return true
}
