package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"sigmatod/internal/models"
	"sigmatod/pkg/config"
	"sigmatod/pkg/conversion"
	"sigmatod/pkg/fractal"
	"sigmatod/pkg/poly"
	"sigmatod/pkg/render"
)

func main() {
	// Parse command line arguments
	inputPath := flag.String("input", "", "CSV matrix of RMS values (use - for stdin)")
	outputPath := flag.String("output", "destimate.csv", "Output CSV for D estimates (use - for stdout)")
	exactOutput := flag.String("exact-output", "", "Output CSV for exact D values (implies -request-exact)")
	configPath := flag.String("config", "config.yaml", "Configuration file path")
	createConfig := flag.Bool("create-config", false, "Write a default configuration file and exit")
	preset := flag.String("preset", "", "Instrument preset (lcpws1, live, storm)")
	systemCorrection := flag.Float64("system-correction", -1, "System correction factor override")
	na := flag.Float64("na", -1, "Illumination numerical aperture override")
	noise := flag.Float64("noise", -1, "Instrument noise floor override")
	exactMode := flag.String("exact-mode", "", "Exact solver mode: if-requested, always, or never")
	requestExact := flag.Bool("request-exact", false, "Request exact values under if-requested mode")
	strict := flag.Bool("strict", false, "Promote advisory warnings to errors")
	workers := flag.Int("workers", 0, "Worker goroutines for the exact pass (0 = config value)")
	precision := flag.Int("precision", 0, "Exact solver precision in decimal digits (0 = config value)")
	coeffsPath := flag.String("coeffs", "", "Polynomial coefficient table (empty = built-in)")
	dmapPath := flag.String("dmap", "", "Write a grayscale JPEG map of the D estimates")
	dmapMin := flag.Float64("dmap-min", 0, "D map window minimum (0 with dmap-max 0 = auto)")
	dmapMax := flag.Float64("dmap-max", 0, "D map window maximum")
	refit := flag.Bool("refit", false, "Refit the coefficient table against the exact solver and exit")
	refitMin := flag.Float64("refit-min", 1.473, "Refit sweep lower d_size bound")
	refitMax := flag.Float64("refit-max", 6.0, "Refit sweep upper d_size bound")
	refitSamples := flag.Int("refit-samples", 200, "Refit sweep sample count")
	refitDegree := flag.Int("refit-degree", 15, "Refit polynomial degree")
	refitOut := flag.String("refit-out", "coefficients.yaml", "Refit output table path")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	// Record which flags were given explicitly so they can override the
	// config file without clobbering it with defaults.
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if *createConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create config file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Default configuration written to %s\n", *configPath)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Flag overrides: preset first, explicit values on top.
	if *preset != "" {
		if err := config.ApplyPreset(cfg, *preset); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if setFlags["system-correction"] {
		cfg.Instrument.SystemCorrection = *systemCorrection
	}
	if setFlags["na"] {
		cfg.Instrument.NAi = *na
	}
	if setFlags["noise"] {
		cfg.Instrument.Noise = *noise
	}
	if setFlags["exact-mode"] {
		cfg.Conversion.ExactMode = *exactMode
	}
	if setFlags["request-exact"] {
		cfg.Conversion.RequestExact = *requestExact
	}
	if *exactOutput != "" {
		cfg.Conversion.RequestExact = true
	}
	if setFlags["strict"] {
		cfg.Conversion.Strict = *strict
	}
	if setFlags["workers"] {
		cfg.Conversion.Workers = *workers
	}
	if setFlags["precision"] {
		cfg.Conversion.PrecisionDigits = *precision
	}
	if setFlags["coeffs"] {
		cfg.Coefficients.File = *coeffsPath
	}
	if setFlags["verbose"] {
		cfg.Output.Verbose = *verbose
	}

	level := zerolog.InfoLevel
	if cfg.Output.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()

	fmt.Fprintln(os.Stderr, "================================")
	fmt.Fprintln(os.Stderr, "SIGMATOD: PWS RMS TO CHROMATIN FRACTAL DIMENSION")
	fmt.Fprintln(os.Stderr, "================================")

	if *refit {
		if cfg.Conversion.PrecisionDigits < 0 {
			logger.Fatal().Msg("precision must be non-negative")
		}
		digits := uint(cfg.Conversion.PrecisionDigits)
		if err := runRefit(logger, *refitMin, *refitMax, *refitSamples, *refitDegree, digits, *refitOut); err != nil {
			logger.Fatal().Err(err).Msg("refit failed")
		}
		return
	}

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "Missing required -input")
		flag.Usage()
		os.Exit(1)
	}

	rms, err := readMatrix(*inputPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *inputPath).Msg("failed to read RMS matrix")
	}
	logger.Info().Ints("shape", rms.Shape).Msg("loaded RMS matrix")

	params, err := paramsFromConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	converter, err := conversion.NewConverter(params)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build converter")
	}
	converter.SetLogger(logger)
	converter.SetProgressCallback(func(completed, total int, message string) {
		if message == "" && total > 0 {
			fmt.Fprintf(os.Stderr, "\rExact solve: %d/%d", completed, total)
			if completed >= total {
				fmt.Fprintln(os.Stderr)
			}
		}
	})

	fmt.Fprintln(os.Stderr, "Starting conversion...")
	startTime := time.Now()
	result, err := converter.Convert(rms)
	if err != nil {
		logger.Fatal().Err(err).Msg("conversion failed")
	}
	elapsed := time.Since(startTime)

	if err := writeMatrix(*outputPath, result.DEstimate); err != nil {
		logger.Fatal().Err(err).Str("path", *outputPath).Msg("failed to write estimates")
	}
	if *exactOutput != "" {
		if result.DExact == nil {
			logger.Warn().Msg("exact output requested but the exact pass did not run (exact mode never)")
		} else if err := writeMatrix(*exactOutput, result.DExact); err != nil {
			logger.Fatal().Err(err).Str("path", *exactOutput).Msg("failed to write exact values")
		}
	}

	if *dmapPath != "" {
		renderer := &render.Renderer{Min: *dmapMin, Max: *dmapMax}
		if err := renderer.Save(result.DEstimate, *dmapPath); err != nil {
			logger.Fatal().Err(err).Str("path", *dmapPath).Msg("failed to render D map")
		}
		logger.Info().Str("path", *dmapPath).Msg("wrote D map")
	}

	fmt.Fprintf(os.Stderr, "\nConversion completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Fprintf(os.Stderr, "Elements: %d\n", result.DEstimate.Len())
	fmt.Fprintf(os.Stderr, "Sigma range: [%.6f, %.6f]\n",
		floats.Min(result.Sigma.Data), floats.Max(result.Sigma.Data))
	fmt.Fprintf(os.Stderr, "d_size range: [%.4f, %.4f]\n",
		floats.Min(result.DSize.Data), floats.Max(result.DSize.Data))
	if result.SelfCheck != nil {
		fmt.Fprintf(os.Stderr, "Self-check: max %.3f%% / mean %.3f%% relative error (passed: %v)\n",
			result.SelfCheck.MaxRelErr*100, result.SelfCheck.MeanRelErr*100, result.SelfCheck.Passed)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning [%s]: %s (%d elements)\n", w.Code, w.Message, len(w.Indices))
	}
}

// paramsFromConfig maps the file/flag configuration onto converter
// parameters, loading the coefficient table when one is named.
func paramsFromConfig(cfg *config.Config) (conversion.Params, error) {
	mode, err := conversion.ParseExactMode(cfg.Conversion.ExactMode)
	if err != nil {
		return conversion.Params{}, err
	}
	if cfg.Conversion.PrecisionDigits < 0 {
		return conversion.Params{}, fmt.Errorf("precision digits must be non-negative, got %d", cfg.Conversion.PrecisionDigits)
	}

	params := conversion.Params{
		SystemCorrection: cfg.Instrument.SystemCorrection,
		NAi:              cfg.Instrument.NAi,
		Noise:            cfg.Instrument.Noise,
		Mode:             mode,
		RequestExact:     cfg.Conversion.RequestExact,
		Strict:           cfg.Conversion.Strict,
		Workers:          cfg.Conversion.Workers,
		PrecisionDigits:  uint(cfg.Conversion.PrecisionDigits),
	}
	if cfg.Coefficients.File != "" {
		table, err := poly.Load(cfg.Coefficients.File)
		if err != nil {
			return conversion.Params{}, err
		}
		params.Table = table
	}
	return params, nil
}

// runRefit sweeps the exact solver across a d_size range, fits a fresh
// polynomial table, and writes it out with the residual reported.
func runRefit(logger zerolog.Logger, lo, hi float64, samples, degree int, digits uint, outPath string) error {
	if hi <= lo {
		return fmt.Errorf("refit range [%v, %v] is empty", lo, hi)
	}
	if samples <= degree+1 {
		return fmt.Errorf("degree-%d refit needs more than %d samples, got %d", degree, degree+1, samples)
	}

	solver := fractal.NewSolver(digits)
	logger.Info().
		Float64("min", lo).
		Float64("max", hi).
		Int("samples", samples).
		Uint("digits", digits).
		Msg("sweeping exact solver")

	xs := make([]float64, 0, samples)
	ys := make([]float64, 0, samples)
	step := (hi - lo) / float64(samples-1)
	for i := 0; i < samples; i++ {
		d := lo + step*float64(i)
		exact := solver.ExactD(d)
		// The solver is undefined at integer d_size above 3; skip those
		// samples rather than poisoning the fit.
		if math.IsNaN(exact) {
			logger.Debug().Float64("dsize", d).Msg("skipping undefined sample")
			continue
		}
		xs = append(xs, d)
		ys = append(ys, exact)

		if (i+1)%20 == 0 || i == samples-1 {
			fmt.Fprintf(os.Stderr, "\rSweep: %d/%d", i+1, samples)
		}
	}
	fmt.Fprintln(os.Stderr)

	version := fmt.Sprintf("refit-%s", time.Now().Format("2006-01-02"))
	table, err := poly.Fit(xs, ys, degree, version)
	if err != nil {
		return err
	}
	if err := poly.Save(table, outPath); err != nil {
		return err
	}

	residual := table.MaxResidual(xs, ys)
	logger.Info().
		Str("version", version).
		Str("path", outPath).
		Float64("maxResidual", residual).
		Int("samples", len(xs)).
		Msg("wrote refit coefficient table")
	fmt.Fprintf(os.Stderr, "Max fit residual: %.3e over %d samples\n", residual, len(xs))
	return nil
}

// readMatrix reads a CSV file of RMS values into a rank-2 array.
func readMatrix(path string) (*models.Array, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		reader = file
	}

	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no rows in input")
	}

	rows := len(records)
	cols := len(records[0])
	data := make([]float64, 0, rows*cols)
	for i, record := range records {
		if len(record) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(record), cols)
		}
		for j, field := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
			}
			data = append(data, v)
		}
	}

	return models.Wrap(data, rows, cols)
}

// writeMatrix writes a rank-2 array as CSV.
func writeMatrix(path string, arr *models.Array) error {
	if arr.Rank() != 2 {
		return fmt.Errorf("can only write rank-2 arrays, got rank %d", arr.Rank())
	}

	var writer io.Writer
	if path == "-" {
		writer = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		writer = file
	}

	w := csv.NewWriter(writer)
	rows, cols := arr.Shape[0], arr.Shape[1]
	record := make([]string, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			record[j] = strconv.FormatFloat(arr.Data[i*cols+j], 'g', -1, 64)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
