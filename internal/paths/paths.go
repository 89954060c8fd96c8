package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "biobank"

type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
	StateDir  string
}

// GetPaths returns all base paths respecting environment variables
func GetPaths() Paths {
	return Paths{
		ConfigDir: getDir("BIOBANK_CONFIG_HOME", "XDG_CONFIG_HOME", ".config", appName),
		DataDir:   getDir("BIOBANK_DATA_HOME", "XDG_DATA_HOME", ".local/share", appName),
		CacheDir:  getDir("BIOBANK_CACHE_HOME", "XDG_CACHE_HOME", ".cache", appName),
		StateDir:  getDir("BIOBANK_STATE_HOME", "XDG_STATE_HOME", ".local/state", appName),
	}
}

func getDir(appEnv, xdgEnv, defaultBase, appName string) string {
	// 1. Check BIOBANK-specific env
	if dir := os.Getenv(appEnv); dir != "" {
		return dir
	}

	// 2. Check XDG env
	if xdgBase := os.Getenv(xdgEnv); xdgBase != "" {
		return filepath.Join(xdgBase, appName)
	}

	// 3. Use default
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultBase, appName)
}

// GetConfigFile returns the default config file location
func GetConfigFile() string {
	return filepath.Join(GetPaths().ConfigDir, "config.yaml")
}

// GetReportsPath returns the directory the server archives generated
// reports into
func GetReportsPath() string {
	if path := os.Getenv("BIOBANK_REPORTS_PATH"); path != "" {
		return path
	}
	return filepath.Join(GetPaths().DataDir, "reports")
}

// EnsureDirectories creates all necessary directories
func EnsureDirectories() error {
	paths := GetPaths()
	dirs := []string{
		paths.ConfigDir,
		paths.DataDir,
		GetReportsPath(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
