package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Archive ArchiveConfig     `yaml:"archive"`
	Index   IndexConfig       `yaml:"index"`
	Extract ExtractConfig     `yaml:"extract"`
	Search  SearchConfig      `yaml:"search"`
	Memory  MemoryConfig      `yaml:"memory"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Archive.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Extract.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.Memory.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	HTTP     HTTPConfig    `yaml:"http"`
	LogFile  LogFileConfig `yaml:"log_file"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LogFileConfig enables rotated file logging when Path is set. Logs always
// go to stdout as well.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// ArchiveConfig holds the path to the chat-export archive directory.
type ArchiveConfig struct {
	Path     string   `yaml:"path"`
	Patterns []string `yaml:"patterns"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IndexConfig holds the on-disk index location and build parallelism.
type IndexConfig struct {
	Path       string `yaml:"path"`
	Workers    int    `yaml:"workers"`
	CPUPercent int    `yaml:"cpu_percent"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.CPUPercent, validation.Min(0), validation.Max(100)),
	)
}

// ExtractConfig tunes the entry extraction pipeline.
type ExtractConfig struct {
	Workers             int    `yaml:"workers"`
	CPUPercent          int    `yaml:"cpu_percent"`
	MaxFileSizeMB       int    `yaml:"max_file_size_mb"`
	MaxTotalSizeGB      int    `yaml:"max_total_size_gb"`
	RAMBufferMB         int    `yaml:"ram_buffer_mb"`
	Dedupe              bool   `yaml:"dedupe"`
	ConversationEntries bool   `yaml:"conversation_entries"`
	OutputPath          string `yaml:"output_path"`
}

// Validate validates the extraction configuration.
func (c *ExtractConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Min(0)),
		validation.Field(&c.CPUPercent, validation.Min(0), validation.Max(100)),
		validation.Field(&c.MaxFileSizeMB, validation.Min(0)),
		validation.Field(&c.MaxTotalSizeGB, validation.Min(0)),
		validation.Field(&c.RAMBufferMB, validation.Min(0)),
	)
}

// SearchConfig carries the search service defaults.
type SearchConfig struct {
	ContextLines        int     `yaml:"context_lines"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	StemCutoff          float64 `yaml:"stem_cutoff"`
	CaseSensitive       bool    `yaml:"case_sensitive"`
	Logic               string  `yaml:"search_logic"`
	MaxSnippetsPerFile  int     `yaml:"max_snippets_per_file"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ContextLines, validation.Min(0)),
		validation.Field(&c.SimilarityThreshold, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.StemCutoff, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.Logic, validation.In("", "AND", "OR")),
		validation.Field(&c.MaxSnippetsPerFile, validation.Min(0)),
	)
}

// MemoryConfig holds the governor watermarks and cache capacities. Zero
// watermarks disable memory checks.
type MemoryConfig struct {
	WarningMB      int `yaml:"warning_mb"`
	CriticalMB     int `yaml:"critical_mb"`
	QueryCacheSize int `yaml:"query_cache_size"`
	FileCacheSize  int `yaml:"file_cache_size"`
}

// Validate validates the memory configuration.
func (c *MemoryConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.WarningMB, validation.Min(0)),
		validation.Field(&c.CriticalMB, validation.Min(0)),
		validation.Field(&c.QueryCacheSize, validation.Min(0)),
		validation.Field(&c.FileCacheSize, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.WarningMB > 0 && c.CriticalMB > 0 && c.CriticalMB < c.WarningMB {
		return fmt.Errorf("memory: critical_mb %d is below warning_mb %d", c.CriticalMB, c.WarningMB)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Archive: ArchiveConfig{
			Path: "./archive",
		},
		Index: IndexConfig{
			Path:       "./raido-index.json",
			CPUPercent: 80,
		},
		Extract: ExtractConfig{
			CPUPercent:     80,
			MaxFileSizeMB:  200,
			MaxTotalSizeGB: 20,
			RAMBufferMB:    256,
			Dedupe:         true,
			OutputPath:     "./entries.json",
		},
		Search: SearchConfig{
			ContextLines:        2,
			SimilarityThreshold: 0.8,
			StemCutoff:          0.1,
			Logic:               "AND",
			MaxSnippetsPerFile:  5,
		},
		Memory: MemoryConfig{
			QueryCacheSize: 128,
			FileCacheSize:  64,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
