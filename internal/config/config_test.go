package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Volume != DefaultVolume {
		t.Errorf("DefaultConfig().Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.LastStation != "" {
		t.Errorf("DefaultConfig().LastStation = %q, want empty string", cfg.LastStation)
	}

	if cfg.Autostart != false {
		t.Errorf("DefaultConfig().Autostart = %v, want false", cfg.Autostart)
	}
}

func TestConfigSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		Volume:      85,
		LastStation: "http://radio.example/live",
	}

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	configPath := filepath.Join(tmpDir, ConfigDir, ConfigFileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Volume != testCfg.Volume {
		t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, testCfg.Volume)
	}

	if loadedCfg.LastStation != testCfg.LastStation {
		t.Errorf("Load().LastStation = %q, want %q", loadedCfg.LastStation, testCfg.LastStation)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with non-existent file returned Volume = %d, want %d", cfg.Volume, DefaultVolume)
	}

	if cfg.LastStation != "" {
		t.Errorf("Load() with non-existent file returned LastStation = %q, want empty string", cfg.LastStation)
	}
}

func TestVolumeValidation(t *testing.T) {
	tests := []struct {
		name           string
		inputVolume    int
		expectedVolume int
	}{
		{"valid volume 50", 50, 50},
		{"valid volume 0", 0, 0},
		{"valid volume 100", 100, 100},
		{"negative volume", -10, 0},
		{"volume over 100", 150, 100},
		{"volume way over 100", 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("HOME", tmpDir)

			testCfg := &Config{
				Volume:      tt.inputVolume,
				LastStation: "http://radio.example/live",
			}

			err := testCfg.Save()
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}

			loadedCfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loadedCfg.Volume != tt.expectedVolume {
				t.Errorf("Load().Volume = %d, want %d", loadedCfg.Volume, tt.expectedVolume)
			}
		})
	}
}

func TestThemeDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load()
	if err != nil {
		t.Logf("Load() error (expected): %v", err)
	}

	if cfg.Theme.Background != "#1a1b25" {
		t.Errorf("Theme.Background = %q, want %q", cfg.Theme.Background, "#1a1b25")
	}
	if cfg.Theme.Foreground != "#a3aacb" {
		t.Errorf("Theme.Foreground = %q, want %q", cfg.Theme.Foreground, "#a3aacb")
	}
	if cfg.Theme.Borders != "#40445b" {
		t.Errorf("Theme.Borders = %q, want %q", cfg.Theme.Borders, "#40445b")
	}
	if cfg.Theme.Highlight != "#ff9d65" {
		t.Errorf("Theme.Highlight = %q, want %q", cfg.Theme.Highlight, "#ff9d65")
	}
	if cfg.Theme.MutedVolume != "#fe0702" {
		t.Errorf("Theme.MutedVolume = %q, want %q", cfg.Theme.MutedVolume, "#fe0702")
	}
}

func TestThemePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		Volume:      70,
		LastStation: "http://radio.example/live",
		Theme: Theme{
			Background: "black",
			Foreground: "yellow",
			Borders:    "blue",
			Highlight:  "red",
		},
	}

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Theme.Background != "black" {
		t.Errorf("Theme.Background = %q, want %q", loadedCfg.Theme.Background, "black")
	}
	if loadedCfg.Theme.Foreground != "yellow" {
		t.Errorf("Theme.Foreground = %q, want %q", loadedCfg.Theme.Foreground, "yellow")
	}
	if loadedCfg.Theme.Borders != "blue" {
		t.Errorf("Theme.Borders = %q, want %q", loadedCfg.Theme.Borders, "blue")
	}
	if loadedCfg.Theme.Highlight != "red" {
		t.Errorf("Theme.Highlight = %q, want %q", loadedCfg.Theme.Highlight, "red")
	}
}

func TestGetColor(t *testing.T) {
	tests := []struct {
		name     string
		colorStr string
		isNonNil bool
	}{
		{"empty string returns default", "", true},
		{"default keyword returns default", "default", true},
		{"named color white", "white", true},
		{"named color red", "red", true},
		{"named color darkcyan", "darkcyan", true},
		{"hex color", "#FF0000", true},
		{"hex color lowercase", "#ff0000", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetColor(tt.colorStr)
			if tt.colorStr == "" || tt.colorStr == "default" {
				if result != 0 {
					t.Errorf("GetColor(%q) = %v, want ColorDefault (0)", tt.colorStr, result)
				}
			}
		})
	}
}

func TestAutostartPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	testCfg := &Config{
		Volume:      70,
		LastStation: "http://radio.example/live",
		Autostart:   true,
		Theme:       DefaultConfig().Theme,
	}

	err := testCfg.Save()
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loadedCfg.Autostart != true {
		t.Errorf("Load().Autostart = %v, want true", loadedCfg.Autostart)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	configPath := filepath.Join(configDir, ConfigFileName)

	invalidYAML := []byte("this is not: valid: yaml: [")
	_ = os.WriteFile(configPath, invalidYAML, 0644)

	cfg, err := Load()
	if err == nil {
		t.Log("Load() returned no error for invalid YAML, but returned default config")
	}

	if cfg.Volume != DefaultVolume {
		t.Errorf("Load() with invalid YAML returned Volume = %d, want default %d", cfg.Volume, DefaultVolume)
	}
}

func TestGetConfigPath(t *testing.T) {
	path, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if path == "" {
		t.Error("GetConfigPath() returned empty string")
	}

	if !filepath.IsAbs(path) {
		t.Errorf("GetConfigPath() = %q, want absolute path", path)
	}
}

func TestPlaybackDefaults(t *testing.T) {
	cfg := DefaultConfig()
	p := cfg.Playback

	if p.BufferMs != 2000 {
		t.Errorf("BufferMs = %d, want 2000", p.BufferMs)
	}
	if p.LowWatermarkMs > p.HighWatermarkMs || p.HighWatermarkMs > p.BufferMs {
		t.Errorf("watermarks out of order: low=%d high=%d buffer=%d", p.LowWatermarkMs, p.HighWatermarkMs, p.BufferMs)
	}
	if p.UnderrunGraceMs != 500 {
		t.Errorf("UnderrunGraceMs = %d, want 500", p.UnderrunGraceMs)
	}
	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.ResyncAfterPauseMs != 0 {
		t.Errorf("ResyncAfterPauseMs = %d, want 0 (disabled)", p.ResyncAfterPauseMs)
	}
}

func TestPlaybackNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input Playback
		check func(t *testing.T, p Playback)
	}{
		{
			name:  "zero values take defaults",
			input: Playback{},
			check: func(t *testing.T, p Playback) {
				want := DefaultPlayback()
				if p.BufferMs != want.BufferMs || p.ConnectTimeoutMs != want.ConnectTimeoutMs {
					t.Errorf("got %+v, want defaults", p)
				}
				if p.MaxRetries != 0 {
					t.Errorf("MaxRetries = %d, want 0 kept", p.MaxRetries)
				}
			},
		},
		{
			name:  "high watermark clamped below buffer",
			input: Playback{BufferMs: 1000, HighWatermarkMs: 5000, LowWatermarkMs: 100},
			check: func(t *testing.T, p Playback) {
				if p.HighWatermarkMs != 750 {
					t.Errorf("HighWatermarkMs = %d, want 750", p.HighWatermarkMs)
				}
			},
		},
		{
			name:  "low watermark clamped to high",
			input: Playback{BufferMs: 2000, HighWatermarkMs: 400, LowWatermarkMs: 900},
			check: func(t *testing.T, p Playback) {
				if p.LowWatermarkMs != 400 {
					t.Errorf("LowWatermarkMs = %d, want 400", p.LowWatermarkMs)
				}
			},
		},
		{
			name:  "backoff ordering and negatives",
			input: Playback{RetryBackoffMs: 5000, MaxBackoffMs: 1000, MaxRetries: -1, ResyncAfterPauseMs: -5, ResampleQuality: 99},
			check: func(t *testing.T, p Playback) {
				if p.MaxBackoffMs != 5000 {
					t.Errorf("MaxBackoffMs = %d, want 5000", p.MaxBackoffMs)
				}
				if p.MaxRetries != 3 {
					t.Errorf("MaxRetries = %d, want default 3", p.MaxRetries)
				}
				if p.ResyncAfterPauseMs != 0 {
					t.Errorf("ResyncAfterPauseMs = %d, want 0", p.ResyncAfterPauseMs)
				}
				if p.ResampleQuality != 64 {
					t.Errorf("ResampleQuality = %d, want 64", p.ResampleQuality)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.input
			p.Normalize()
			tt.check(t, p)
		})
	}
}

func TestPlaybackPersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg := DefaultConfig()
	cfg.Playback.BufferMs = 3000
	cfg.Playback.UnderrunGraceMs = 800
	cfg.Directory.Order = "clickcount"
	cfg.Catalog.DSN = "postgres://radio@localhost/radio"

	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Playback.BufferMs != 3000 || loaded.Playback.UnderrunGraceMs != 800 {
		t.Errorf("Playback not persisted: %+v", loaded.Playback)
	}
	if loaded.Directory.Order != "clickcount" {
		t.Errorf("Directory.Order = %q, want clickcount", loaded.Directory.Order)
	}
	if loaded.Catalog.DSN != cfg.Catalog.DSN {
		t.Errorf("Catalog.DSN = %q, want %q", loaded.Catalog.DSN, cfg.Catalog.DSN)
	}
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	configDir := filepath.Join(tmpDir, ConfigDir)
	_ = os.MkdirAll(configDir, 0755)
	data := []byte("volume: 40\nplayback:\n  buffer_ms: 1500\n")
	_ = os.WriteFile(filepath.Join(configDir, ConfigFileName), data, 0644)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Volume != 40 {
		t.Errorf("Volume = %d, want 40", cfg.Volume)
	}
	if cfg.Playback.BufferMs != 1500 {
		t.Errorf("BufferMs = %d, want 1500", cfg.Playback.BufferMs)
	}
	if cfg.Playback.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.Playback.MaxRetries)
	}
	if cfg.Directory.BaseURL != DefaultDirectoryBaseURL {
		t.Errorf("Directory.BaseURL = %q, want default", cfg.Directory.BaseURL)
	}
}

func TestGetLibraryPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	path, err := GetLibraryPath()
	if err != nil {
		t.Fatalf("GetLibraryPath() error = %v", err)
	}
	want := filepath.Join(tmpDir, ConfigDir, LibraryFileName)
	if path != want {
		t.Errorf("GetLibraryPath() = %q, want %q", path, want)
	}
}
