package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/export"
	"github.com/nishad/biobank/internal/paths"
	"github.com/nishad/biobank/internal/source"
)

// Config represents the biobank configuration
type Config struct {
	Sheets      SheetConfig     `yaml:"sheets"`       // Worksheet per input
	DateLayouts []string        `yaml:"date_layouts"` // Extra Go time layouts for sample dates
	Output      OutputConfig    `yaml:"output"`
	Server      ServerConfig    `yaml:"server"`
	S3          source.S3Config `yaml:"s3"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// SheetConfig names the worksheet each input is read from
type SheetConfig struct {
	Samples   string `yaml:"samples"`
	Inventory string `yaml:"inventory"`
	Consents  string `yaml:"consents"`
}

// OutputConfig contains report output settings
type OutputConfig struct {
	Directory string `yaml:"directory"` // Where the CLI writes reports
	Format    string `yaml:"format"`    // xlsx, csv, tsv or json
	Overwrite bool   `yaml:"overwrite"` // Replace an existing report of the same name
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	EnableCORS  bool   `yaml:"enable_cors"`
	MaxUploadMB int64  `yaml:"max_upload_mb"` // Per request, all files together
	Archive     bool   `yaml:"archive"`       // Keep a copy of every report served
	ArchiveDir  string `yaml:"archive_dir"`
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console or json
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	sheets := source.DefaultSheets()

	return &Config{
		Sheets: SheetConfig{
			Samples:   sheets["samples"],
			Inventory: sheets["inventory"],
			Consents:  sheets["consents"],
		},
		Output: OutputConfig{
			Directory: ".",
			Format:    string(export.FormatXLSX),
		},
		Server: ServerConfig{
			Host:        "localhost",
			Port:        8080,
			EnableCORS:  true,
			MaxUploadMB: 32,
			ArchiveDir:  paths.GetReportsPath(),
		},
		S3: source.S3Config{
			Region: "us-east-1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	const op errors.Op = "config.load"

	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Defaults, still subject to the environment
		config.applyEnv()
		return config, nil
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.E(op, errors.KindConfig, err, "failed to read config file")
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.E(op, errors.KindConfig, err, "failed to parse config file")
	}

	config.Output.Directory = expandPath(config.Output.Directory)
	config.Server.ArchiveDir = expandPath(config.Server.ArchiveDir)
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	const op errors.Op = "config.save"

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.E(op, errors.KindIO, err, "failed to create config directory")
	}

	// Marshal to YAML
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.E(op, errors.KindConfig, err, "failed to marshal config")
	}

	// The file may hold S3 credentials
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.E(op, errors.KindIO, err, "failed to write config file")
	}

	return nil
}

// Validate checks values that would otherwise fail deep inside a report run
func (c *Config) Validate() error {
	const op errors.Op = "config.validate"

	if _, err := export.ParseFormat(c.Output.Format); err != nil {
		return errors.E(op, errors.KindConfig, err, "output.format")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.E(op, errors.KindConfig, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxUploadMB <= 0 {
		return errors.E(op, errors.KindConfig, "server.max_upload_mb must be positive")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return errors.E(op, errors.KindConfig, err, "logging.level")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return errors.E(op, errors.KindConfig, fmt.Sprintf("logging.format %q (use console or json)", c.Logging.Format))
	}
	return nil
}

// SheetNames returns the worksheet mapping used by the sources
func (c *Config) SheetNames() source.Sheets {
	return source.Sheets{
		"samples":   c.Sheets.Samples,
		"inventory": c.Sheets.Inventory,
		"consents":  c.Sheets.Consents,
	}
}

// GetConfigPath returns the default config file path
func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv("BIOBANK_CONFIG"); path != "" {
		return path
	}

	// Check current directory
	if _, err := os.Stat("biobank.yaml"); err == nil {
		return "biobank.yaml"
	}

	// Use default location
	return paths.GetConfigFile()
}

// applyEnv overrides S3 settings from BIOBANK_S3_* variables
func (c *Config) applyEnv() {
	if v := os.Getenv("BIOBANK_S3_REGION"); v != "" {
		c.S3.Region = v
	}
	if v := os.Getenv("BIOBANK_S3_ENDPOINT"); v != "" {
		c.S3.Endpoint = v
	}
	if v := os.Getenv("BIOBANK_S3_ACCESS_KEY_ID"); v != "" {
		c.S3.AccessKeyID = v
	}
	if v := os.Getenv("BIOBANK_S3_SECRET_ACCESS_KEY"); v != "" {
		c.S3.SecretAccessKey = v
	}
	if v := os.Getenv("BIOBANK_S3_PATH_STYLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.S3.PathStyle = b
		}
	}
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) == 0 {
		return path
	}

	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}

	return path
}
