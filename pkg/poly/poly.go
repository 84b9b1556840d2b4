// Package poly manages the polynomial calibration table that
// approximates the exact Sigma-to-D solver. A table is a small
// versioned artifact: the fitted coefficients, their ordering
// convention, the degree, and the d-size domain the fit was trained on.
// Getting the ordering convention wrong silently produces wrong D
// values, so the table records it explicitly and the in-memory form is
// always normalized.
package poly

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Coefficient orderings a table file may declare. In memory a Table is
// always highest-degree-first; lowest-first files are reversed on load.
const (
	OrderingHighestFirst = "highest-first"
	OrderingLowestFirst  = "lowest-first"
)

// Domain is the closed d-size interval a fit was trained on. Values
// outside it still evaluate; the converter applies its own range
// advisories.
type Domain struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Table is one polynomial calibration artifact. It is read-only after
// load and safe to share across goroutines.
type Table struct {
	Version      string    `yaml:"version"`
	Degree       int       `yaml:"degree"`
	Ordering     string    `yaml:"ordering"`
	Domain       Domain    `yaml:"domain"`
	Coefficients []float64 `yaml:"coefficients"`
}

// Default returns the legacy calibration shipped with the converter: a
// 15th-degree fit of the exact solver over d-size values in [1.473, 6],
// highest-degree-first. Each call returns a fresh copy.
func Default() *Table {
	return &Table{
		Version:  "legacy-1",
		Degree:   15,
		Ordering: OrderingHighestFirst,
		Domain:   Domain{Min: 1.473, Max: 6.0},
		Coefficients: []float64{
			-9.14414809736752e-09,
			8.02336561707375e-07,
			-3.22276589702395e-05,
			0.000784980326922923,
			-0.0129458554989855,
			0.152852475387947,
			-1.33210715342735,
			8.70614624955508,
			-42.9149123685218,
			159.111116839950,
			-438.829185621276,
			881.674160348790,
			-1246.22822358504,
			1168.11294529161,
			-647.810667596662,
			161.021813781994,
		},
	}
}

// Validate reports whether the table is internally consistent.
func (t *Table) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("coefficient table has no version")
	}
	switch t.Ordering {
	case OrderingHighestFirst, OrderingLowestFirst:
	default:
		return fmt.Errorf("unknown coefficient ordering %q", t.Ordering)
	}
	if t.Degree < 1 {
		return fmt.Errorf("invalid polynomial degree %d", t.Degree)
	}
	if len(t.Coefficients) != t.Degree+1 {
		return fmt.Errorf("degree %d requires %d coefficients, table has %d",
			t.Degree, t.Degree+1, len(t.Coefficients))
	}
	if !(t.Domain.Min < t.Domain.Max) {
		return fmt.Errorf("invalid fit domain [%v, %v]", t.Domain.Min, t.Domain.Max)
	}
	return nil
}

// Eval evaluates the polynomial at x by Horner's rule, under the
// highest-degree-first convention the legacy table was produced with
// (MATLAB polyval order).
func (t *Table) Eval(x float64) float64 {
	out := 0.0
	for _, c := range t.Coefficients {
		out = out*x + c
	}
	return out
}

// Load reads a coefficient table from a YAML file, validates it, and
// normalizes the in-memory ordering to highest-degree-first.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read coefficient table: %w", err)
	}
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse coefficient table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Ordering == OrderingLowestFirst {
		reverse(t.Coefficients)
		t.Ordering = OrderingHighestFirst
	}
	return &t, nil
}

// Save writes the table to a YAML file as-is, preserving its declared
// ordering.
func Save(t *Table, path string) error {
	if err := t.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode coefficient table: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write coefficient table: %w", err)
	}
	return nil
}

func reverse(s []float64) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
