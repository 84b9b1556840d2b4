package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Instrument.SystemCorrection != 2.43 {
		t.Errorf("expected system correction 2.43, got %v", cfg.Instrument.SystemCorrection)
	}
	if cfg.Instrument.NAi != 0.55 {
		t.Errorf("expected NAi 0.55, got %v", cfg.Instrument.NAi)
	}
	if cfg.Instrument.Noise != 0.009 {
		t.Errorf("expected noise 0.009, got %v", cfg.Instrument.Noise)
	}
	if cfg.Conversion.ExactMode != "if-requested" {
		t.Errorf("expected exact mode if-requested, got %q", cfg.Conversion.ExactMode)
	}
	if cfg.Conversion.PrecisionDigits != 40 {
		t.Errorf("expected 40 precision digits, got %d", cfg.Conversion.PrecisionDigits)
	}
	if cfg.Conversion.Workers < 1 {
		t.Errorf("expected at least one worker, got %d", cfg.Conversion.Workers)
	}
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}
	def := DefaultConfig()
	if cfg.Instrument.NAi != def.Instrument.NAi || cfg.Conversion.ExactMode != def.Conversion.ExactMode {
		t.Errorf("expected default config, got %+v", cfg)
	}
}

func TestLoadConfigPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "instrument:\n  nai: 0.40\nconversion:\n  strict: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Instrument.NAi != 0.40 {
		t.Errorf("expected overridden NAi 0.40, got %v", cfg.Instrument.NAi)
	}
	if !cfg.Conversion.Strict {
		t.Error("expected overridden strict true")
	}
	// Untouched keys keep their defaults.
	if cfg.Instrument.SystemCorrection != 2.43 {
		t.Errorf("expected default system correction, got %v", cfg.Instrument.SystemCorrection)
	}
	if cfg.Conversion.PrecisionDigits != 40 {
		t.Errorf("expected default precision digits, got %d", cfg.Conversion.PrecisionDigits)
	}
}

func TestLoadConfigRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("instrument: [oops\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for malformed config, got nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Instrument.Noise = 0.012
	cfg.Conversion.RequestExact = true
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got.Instrument.Noise != 0.012 {
		t.Errorf("expected noise 0.012 after round trip, got %v", got.Instrument.Noise)
	}
	if !got.Conversion.RequestExact {
		t.Error("expected requestExact true after round trip")
	}
}

func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist: %v", err)
	}
}

func TestApplyPreset(t *testing.T) {
	cfg := DefaultConfig()
	if err := ApplyPreset(cfg, "storm"); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if cfg.Instrument.NAi != 0.40 || cfg.Instrument.Noise != 0.012 {
		t.Errorf("expected storm profile, got NAi=%v noise=%v", cfg.Instrument.NAi, cfg.Instrument.Noise)
	}
	if cfg.Instrument.Preset != "storm" {
		t.Errorf("expected preset name recorded, got %q", cfg.Instrument.Preset)
	}

	if err := ApplyPreset(cfg, "unknown-bench"); err == nil {
		t.Error("expected error for unknown preset, got nil")
	}
}
