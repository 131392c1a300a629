package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for stv.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Folders    []FolderConfig   `toml:"folders"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Database   DatabaseConfig   `toml:"database"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Retention  RetentionConfig  `toml:"retention"`
	Archive    ArchiveConfig    `toml:"archive"`
	Log        LogConfig        `toml:"log"`
}

// FolderConfig names a synced folder so commands can refer to it by label.
// The label is also the second segment of archive keys.
type FolderConfig struct {
	Label string `toml:"label"`
	Path  string `toml:"path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"` // glob patterns excluded from conflict scans
}

// RetentionConfig holds defaults for `versions prune`.
type RetentionConfig struct {
	DefaultDays int `toml:"default_days"`
}

// ArchiveConfig holds archive upload settings.
type ArchiveConfig struct {
	Concurrency int `toml:"concurrency"` // parallel uploads; 0 means 4
}

// LogConfig controls log file rotation.
type LogConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	Debug      bool `toml:"debug"`
}

// VaultConfig represents configuration for a vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible services; forces path-style
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the operation journal.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Retention: RetentionConfig{DefaultDays: 30},
		Archive:   ArchiveConfig{Concurrency: 4},
		Log:       LogConfig{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id is required")
	}
	seen := make(map[string]bool, len(c.Folders))
	for i, f := range c.Folders {
		if f.Label == "" {
			return fmt.Errorf("folders[%d]: label is required", i)
		}
		if !filepath.IsAbs(f.Path) {
			return fmt.Errorf("folders[%d] (%s): path must be absolute", i, f.Label)
		}
		if seen[f.Label] {
			return fmt.Errorf("folders[%d]: duplicate label %q", i, f.Label)
		}
		seen[f.Label] = true
	}
	if c.Retention.DefaultDays < 0 {
		return fmt.Errorf("retention.default_days must not be negative")
	}
	if c.Archive.Concurrency < 0 {
		return fmt.Errorf("archive.concurrency must not be negative")
	}
	return nil
}

// FolderByLabel returns the folder with the given label.
func (c *Config) FolderByLabel(label string) (FolderConfig, bool) {
	for _, f := range c.Folders {
		if f.Label == label {
			return f, true
		}
	}
	return FolderConfig{}, false
}

// FolderByPath returns the configured folder whose path is path.
func (c *Config) FolderByPath(path string) (FolderConfig, bool) {
	clean := filepath.Clean(path)
	for _, f := range c.Folders {
		if filepath.Clean(f.Path) == clean {
			return f, true
		}
	}
	return FolderConfig{}, false
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to path, creating its directory. The file is
// private to the user because it may hold S3 credentials.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
