// Package render turns D-estimate arrays into grayscale JPEG maps, the
// usual way a converted field of view gets eyeballed. Values map
// linearly onto 16-bit gray between a window [Min, Max]; undefined
// (NaN) elements render black.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"sigmatod/internal/models"
)

// Renderer maps array values onto the grayscale range.
type Renderer struct {
	// Min and Max bound the grayscale window. Leaving both zero (or
	// equal) windows each array on its own finite range, which is
	// convenient for a single map but wrong for comparing several.
	Min float64
	Max float64
}

// NewRenderer returns a renderer with automatic windowing.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// window resolves the grayscale bounds for one array.
func (r *Renderer) window(data []float64) (lo, hi float64, err error) {
	if r.Min != r.Max {
		if r.Max < r.Min {
			return 0, 0, fmt.Errorf("window max %v below min %v", r.Max, r.Min)
		}
		return r.Min, r.Max, nil
	}

	finite := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return 0, 0, fmt.Errorf("array has no finite values to window")
	}
	lo = floats.Min(finite)
	hi = floats.Max(finite)
	if lo == hi {
		// Flat array: render it mid-gray rather than dividing by zero.
		lo -= 0.5
		hi += 0.5
	}
	return lo, hi, nil
}

// Image renders a rank-2 array into a 16-bit grayscale image. Rows map
// to image rows, columns to columns.
func (r *Renderer) Image(arr *models.Array) (image.Image, error) {
	if arr == nil {
		return nil, fmt.Errorf("array is nil")
	}
	if err := arr.Validate(); err != nil {
		return nil, fmt.Errorf("invalid array: %w", err)
	}
	if arr.Rank() != 2 {
		return nil, fmt.Errorf("can only render rank-2 arrays, got rank %d", arr.Rank())
	}

	lo, hi, err := r.window(arr.Data)
	if err != nil {
		return nil, err
	}
	span := hi - lo

	height := arr.Shape[0]
	width := arr.Shape[1]
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := arr.Data[y*width+x]
			if math.IsNaN(v) {
				img.SetGray16(x, y, color.Gray16{Y: 0})
				continue
			}
			norm := (v - lo) / span
			value := uint16(math.Max(0, math.Min(65535, norm*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// Save renders a rank-2 array and writes it as a JPEG file.
func (r *Renderer) Save(arr *models.Array, filename string) error {
	img, err := r.Image(arr)
	if err != nil {
		return err
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSequence renders a rank-3 array as one JPEG per leading-axis
// plane, named dmap_000.jpg, dmap_001.jpg and so on.
func (r *Renderer) SaveSequence(arr *models.Array, outputDir string) error {
	if arr == nil {
		return fmt.Errorf("array is nil")
	}
	if err := arr.Validate(); err != nil {
		return fmt.Errorf("invalid array: %w", err)
	}
	if arr.Rank() != 3 {
		return fmt.Errorf("can only render sequences of rank-3 arrays, got rank %d", arr.Rank())
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	planes, rows, cols := arr.Shape[0], arr.Shape[1], arr.Shape[2]
	planeSize := rows * cols
	for p := 0; p < planes; p++ {
		plane, err := models.Wrap(arr.Data[p*planeSize:(p+1)*planeSize], rows, cols)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("dmap_%03d.jpg", p))
		if err := r.Save(plane, filename); err != nil {
			return err
		}
	}

	return nil
}
