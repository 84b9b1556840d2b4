package render

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"sigmatod/internal/models"
)

func TestImageGradient(t *testing.T) {
	// Two rows spanning the window: lowest value black, highest white.
	arr, err := models.Wrap([]float64{1.0, 2.0, 3.0, 1.0, 2.0, 3.0}, 2, 3)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}

	r := NewRenderer()
	img, err := r.Image(arr)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 3 || bounds.Dy() != 2 {
		t.Errorf("expected 3x2 image, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("expected *image.Gray16, got %T", img)
	}
	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("expected black at window minimum, got %d", got)
	}
	if got := gray.Gray16At(2, 0).Y; got != 65535 {
		t.Errorf("expected white at window maximum, got %d", got)
	}
	mid := gray.Gray16At(1, 1).Y
	if math.Abs(float64(mid)-32767.5) > 1 {
		t.Errorf("expected mid-gray at window center, got %d", mid)
	}
}

func TestImageExplicitWindow(t *testing.T) {
	arr, err := models.Wrap([]float64{1.0, 2.0, 3.0, 4.0}, 2, 2)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}

	// Window [2, 3]: values outside clamp to the ends.
	r := &Renderer{Min: 2, Max: 3}
	img, err := r.Image(arr)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	gray := img.(*image.Gray16)
	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("expected below-window value clamped to black, got %d", got)
	}
	if got := gray.Gray16At(1, 1).Y; got != 65535 {
		t.Errorf("expected above-window value clamped to white, got %d", got)
	}
}

func TestImageNaNRendersBlack(t *testing.T) {
	arr, err := models.Wrap([]float64{math.NaN(), 2.0, 3.0, 4.0}, 2, 2)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}

	img, err := NewRenderer().Image(arr)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	gray := img.(*image.Gray16)
	if got := gray.Gray16At(0, 0).Y; got != 0 {
		t.Errorf("expected NaN rendered black, got %d", got)
	}
	// Auto window comes from the finite values only.
	if got := gray.Gray16At(1, 1).Y; got != 65535 {
		t.Errorf("expected finite maximum rendered white, got %d", got)
	}
}

func TestImageFlatArray(t *testing.T) {
	arr, err := models.Wrap([]float64{2.5, 2.5, 2.5, 2.5}, 2, 2)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}
	img, err := NewRenderer().Image(arr)
	if err != nil {
		t.Fatalf("expected flat array to render, got %v", err)
	}
	gray := img.(*image.Gray16)
	if got := gray.Gray16At(0, 0).Y; math.Abs(float64(got)-32767.5) > 1 {
		t.Errorf("expected flat array rendered mid-gray, got %d", got)
	}
}

func TestImageRejects(t *testing.T) {
	r := NewRenderer()

	if _, err := r.Image(nil); err == nil {
		t.Error("expected error for nil array, got nil")
	}
	if _, err := r.Image(models.FromValues(1, 2, 3)); err == nil {
		t.Error("expected error for rank-1 array, got nil")
	}
	allNaN, _ := models.Wrap([]float64{math.NaN(), math.NaN()}, 1, 2)
	if _, err := r.Image(allNaN); err == nil {
		t.Error("expected error for all-NaN array, got nil")
	}
	bad := &Renderer{Min: 3, Max: 1}
	arr, _ := models.Wrap([]float64{1, 2, 3, 4}, 2, 2)
	if _, err := bad.Image(arr); err == nil {
		t.Error("expected error for inverted window, got nil")
	}
}

func TestSave(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	arr, err := models.Wrap([]float64{1, 2, 3, 4}, 2, 2)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}

	filename := filepath.Join(t.TempDir(), "dmap.jpg")
	if err := NewRenderer().Save(arr, filename); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		t.Errorf("saved file does not exist: %s", filename)
	}
}

func TestSaveSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	data := make([]float64, 3*2*2)
	for i := range data {
		data[i] = float64(i)
	}
	arr, err := models.Wrap(data, 3, 2, 2)
	if err != nil {
		t.Fatalf("failed to build array: %v", err)
	}

	outputDir := filepath.Join(t.TempDir(), "maps")
	if err := NewRenderer().SaveSequence(arr, outputDir); err != nil {
		t.Fatalf("save sequence failed: %v", err)
	}
	for p := 0; p < 3; p++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("dmap_%03d.jpg", p))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("expected plane file does not exist: %s", filename)
		}
	}

	// Rank-2 input is not a sequence.
	flat, _ := models.Wrap([]float64{1, 2, 3, 4}, 2, 2)
	if err := NewRenderer().SaveSequence(flat, outputDir); err == nil {
		t.Error("expected error for rank-2 input, got nil")
	}
}
