package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName           = "RTap"
	AppTagline        = "Terminal internet radio"
	AppDescription    = "A terminal client for internet radio stations"
	AppAuthor         = "Ilya Glebov"
	AppAuthorURL      = "https://ilyaglebov.dev"
	AppAuthorURLShort = "ilyaglebov.dev"
	AppProjectURL     = "https://github.com/glebovdev/rtap"
	AppProjectShort   = "github.com/glebovdev/rtap"
	DirectoryURL      = "https://www.radio-browser.info"
	DirectoryShort    = "radio-browser.info"

	ConfigDir       = ".config/rtap"
	ConfigFileName  = "config.yml"
	LibraryFileName = "library.db"
	DefaultVolume   = 70
	MinVolume       = 0
	MaxVolume       = 100

	DefaultDirectoryBaseURL = "https://de1.api.radio-browser.info"
	DefaultPageSize         = 100
	DefaultCacheTTLMinutes  = 60
)

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/rtap/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Theme struct {
	Background                  string `yaml:"background"`
	Foreground                  string `yaml:"foreground"`
	Borders                     string `yaml:"borders"`
	Highlight                   string `yaml:"highlight"`
	MutedVolume                 string `yaml:"muted_volume"`
	HeaderBackground            string `yaml:"header_background"`
	StationListHeaderBackground string `yaml:"station_list_header_background"`
	StationListHeaderForeground string `yaml:"station_list_header_foreground"`
	HelpBackground              string `yaml:"help_background"`
	HelpForeground              string `yaml:"help_foreground"`
	HelpHotkey                  string `yaml:"help_hotkey"`
	GenreTagBackground          string `yaml:"genre_tag_background"`
	ModalBackground             string `yaml:"modal_background"`
}

// Playback holds the pipeline policy. Durations are in milliseconds.
type Playback struct {
	BufferMs           int `yaml:"buffer_ms"`
	LowWatermarkMs     int `yaml:"low_watermark_ms"`
	HighWatermarkMs    int `yaml:"high_watermark_ms"`
	UnderrunGraceMs    int `yaml:"underrun_grace_ms"`
	ConnectTimeoutMs   int `yaml:"connect_timeout_ms"`
	StartupTimeoutMs   int `yaml:"startup_timeout_ms"`
	ReadTimeoutMs      int `yaml:"read_timeout_ms"`
	TeardownTimeoutMs  int `yaml:"teardown_timeout_ms"`
	MaxRetries         int `yaml:"max_retries"`
	RetryBackoffMs     int `yaml:"retry_backoff_ms"`
	MaxBackoffMs       int `yaml:"max_backoff_ms"`
	ResyncAfterPauseMs int `yaml:"resync_after_pause_ms"`
	FrameSamples       int `yaml:"frame_samples"`
	MaxDecodeErrors    int `yaml:"max_decode_errors"`
	DeviceSampleRate   int `yaml:"device_sample_rate"`
	ResampleQuality    int `yaml:"resample_quality"`
}

type Directory struct {
	BaseURL         string `yaml:"base_url"`
	PageSize        int    `yaml:"page_size"`
	Order           string `yaml:"order"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

type Catalog struct {
	// DSN is a SQLite file path or a postgres:// URL. Empty means the
	// default library file next to the config.
	DSN string `yaml:"dsn"`
}

type Config struct {
	Volume      int       `yaml:"volume"`
	LastStation string    `yaml:"last_station"`
	Autostart   bool      `yaml:"autostart"`
	Theme       Theme     `yaml:"theme"`
	Playback    Playback  `yaml:"playback"`
	Directory   Directory `yaml:"directory"`
	Catalog     Catalog   `yaml:"catalog"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

// GetLibraryPath returns the default SQLite library location.
func GetLibraryPath() (string, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(configPath), LibraryFileName), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Normalize()

	return cfg, nil
}

// Save writes the configuration to disk atomically using temp file + rename.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultPlayback() Playback {
	return Playback{
		BufferMs:           2000,
		LowWatermarkMs:     250,
		HighWatermarkMs:    1000,
		UnderrunGraceMs:    500,
		ConnectTimeoutMs:   10000,
		StartupTimeoutMs:   20000,
		ReadTimeoutMs:      5000,
		TeardownTimeoutMs:  3000,
		MaxRetries:         3,
		RetryBackoffMs:     1000,
		MaxBackoffMs:       8000,
		ResyncAfterPauseMs: 0,
		FrameSamples:       1024,
		MaxDecodeErrors:    8,
		DeviceSampleRate:   44100,
		ResampleQuality:    4,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Volume:      DefaultVolume,
		LastStation: "",
		Autostart:   false,
		Theme: Theme{
			Background:                  "#1a1b25",
			Foreground:                  "#a3aacb",
			Borders:                     "#40445b",
			Highlight:                   "#ff9d65",
			MutedVolume:                 "#fe0702",
			HeaderBackground:            "#473533",
			StationListHeaderBackground: "#3a3d4f",
			StationListHeaderForeground: "#c8d0e8",
			HelpBackground:              "#322f45",
			HelpForeground:              "#9aa3c6",
			HelpHotkey:                  "#ff9d65",
			GenreTagBackground:          "#3a3d4f",
			ModalBackground:             "#282a36",
		},
		Playback: DefaultPlayback(),
		Directory: Directory{
			BaseURL:         DefaultDirectoryBaseURL,
			PageSize:        DefaultPageSize,
			Order:           "votes",
			CacheTTLMinutes: DefaultCacheTTLMinutes,
		},
	}
}

// Normalize clamps out-of-range values and restores defaults for unset ones.
func (c *Config) Normalize() {
	c.Volume = ClampVolume(c.Volume)
	c.Playback.Normalize()

	if c.Directory.BaseURL == "" {
		c.Directory.BaseURL = DefaultDirectoryBaseURL
	}
	if c.Directory.PageSize <= 0 {
		c.Directory.PageSize = DefaultPageSize
	}
	if c.Directory.CacheTTLMinutes <= 0 {
		c.Directory.CacheTTLMinutes = DefaultCacheTTLMinutes
	}
}

// Normalize keeps low <= high <= buffer and replaces non-positive values
// with defaults. ResyncAfterPauseMs may stay 0 (disabled).
func (p *Playback) Normalize() {
	def := DefaultPlayback()
	orDefault := func(v *int, d int) {
		if *v <= 0 {
			*v = d
		}
	}
	orDefault(&p.BufferMs, def.BufferMs)
	orDefault(&p.LowWatermarkMs, def.LowWatermarkMs)
	orDefault(&p.HighWatermarkMs, def.HighWatermarkMs)
	orDefault(&p.UnderrunGraceMs, def.UnderrunGraceMs)
	orDefault(&p.ConnectTimeoutMs, def.ConnectTimeoutMs)
	orDefault(&p.StartupTimeoutMs, def.StartupTimeoutMs)
	orDefault(&p.ReadTimeoutMs, def.ReadTimeoutMs)
	orDefault(&p.TeardownTimeoutMs, def.TeardownTimeoutMs)
	orDefault(&p.RetryBackoffMs, def.RetryBackoffMs)
	orDefault(&p.MaxBackoffMs, def.MaxBackoffMs)
	orDefault(&p.FrameSamples, def.FrameSamples)
	orDefault(&p.MaxDecodeErrors, def.MaxDecodeErrors)
	orDefault(&p.DeviceSampleRate, def.DeviceSampleRate)
	orDefault(&p.ResampleQuality, def.ResampleQuality)
	if p.MaxRetries < 0 {
		p.MaxRetries = def.MaxRetries
	}
	if p.ResyncAfterPauseMs < 0 {
		p.ResyncAfterPauseMs = 0
	}
	if p.ResampleQuality > 64 {
		p.ResampleQuality = 64
	}

	// the producer blocks once less than a frame of room is left
	if maxHigh := p.BufferMs * 3 / 4; p.HighWatermarkMs > maxHigh {
		p.HighWatermarkMs = maxHigh
	}
	if p.LowWatermarkMs > p.HighWatermarkMs {
		p.LowWatermarkMs = p.HighWatermarkMs
	}
	if p.MaxBackoffMs < p.RetryBackoffMs {
		p.MaxBackoffMs = p.RetryBackoffMs
	}
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
