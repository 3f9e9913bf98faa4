package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Config holds the runtime configuration for splitsearch. All fields have
// working defaults so an empty file (or no file at all) is valid.
type Config struct {
	// CacheDir is where downloaded index files are materialized.
	CacheDir string `toml:"cache_dir"`

	// CatalogPath points at the TOML manifest describing which splits have
	// a search index and where to fetch it from.
	CatalogPath string `toml:"catalog"`

	// BatchSize is the window size (in rows) used by the chunked scan
	// strategy for large indexes.
	BatchSize int `toml:"batch_size"`

	// MaxPageSize bounds offset-relative page length accepted by the API.
	MaxPageSize int `toml:"max_page_size"`

	// ScanAll disables the chunked scan's early-stop heuristic and forces a
	// full window sweep. Slower, but immune to late high-scoring rows.
	ScanAll bool `toml:"scan_all"`

	// ChunkedDatasets lists datasets whose indexes are too large for a
	// single ranked pass and must be scanned window by window.
	ChunkedDatasets []string `toml:"chunked_datasets"`

	// DownloadTimeout bounds a single index download. Zero means no limit.
	DownloadTimeout Duration `toml:"download_timeout,omitempty"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

const (
	DefaultBatchSize   = 1000
	DefaultMaxPageSize = 100
)

func GetDefaultConfig() (*Config, error) {
	cacheDir, err := GetDefaultCacheDir()
	if err != nil {
		return nil, fmt.Errorf("getting default cache directory: %w", err)
	}
	catalogPath, err := GetDefaultCatalogPath()
	if err != nil {
		return nil, fmt.Errorf("getting default catalog path: %w", err)
	}
	return &Config{
		CacheDir:    cacheDir,
		CatalogPath: catalogPath,
		BatchSize:   DefaultBatchSize,
		MaxPageSize: DefaultMaxPageSize,
	}, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.CacheDir == "" {
		cacheDir, err := GetDefaultCacheDir()
		if err != nil {
			return nil, fmt.Errorf("getting default cache directory: %w", err)
		}
		config.CacheDir = cacheDir
	}

	if config.CatalogPath == "" {
		catalogPath, err := GetDefaultCatalogPath()
		if err != nil {
			return nil, fmt.Errorf("getting default catalog path: %w", err)
		}
		config.CatalogPath = catalogPath
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.MaxPageSize <= 0 {
		config.MaxPageSize = DefaultMaxPageSize
	}

	return &config, nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	template, err := c.generateConfigTemplate()
	if err != nil {
		return fmt.Errorf("generating config template: %w", err)
	}
	return os.WriteFile(configPath, []byte(template), 0644)
}

func (c *Config) generateConfigTemplate() (string, error) {
	cacheDir := c.CacheDir
	if cacheDir == "" {
		var err error
		cacheDir, err = GetDefaultCacheDir()
		if err != nil {
			return "", fmt.Errorf("getting default cache directory: %w", err)
		}
	}

	// Replace the placeholder cache_dir with the actual path
	template := strings.Replace(configTemplate, "/home/user/.cache/splitsearch", cacheDir, 1)
	return template, nil
}

// IsChunked reports whether the given dataset is on the large-index
// allow-list and must be searched with the chunked scan strategy.
func (c *Config) IsChunked(dataset string) bool {
	return slices.Contains(c.ChunkedDatasets, dataset)
}

// GetDefaultCacheDir returns the default directory for downloaded indexes
func GetDefaultCacheDir() (string, error) {
	// Use XDG_CACHE_HOME if set, otherwise use ~/.cache
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, ".cache")
	}

	dir := filepath.Join(cacheDir, "splitsearch")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating cache directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the configuration directory for splitsearch
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "splitsearch")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// GetDefaultCatalogPath returns the default catalog manifest path
func GetDefaultCatalogPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "catalog.toml"), nil
}
