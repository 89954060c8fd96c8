package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nishad/biobank/internal/config"
	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/paths"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage biobank configuration",
	Long:  `Manage biobank configuration: worksheet names, date layouts, output, server, S3 and logging.`,
}

var configPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Show all active paths",
	Long: `Display the configuration, data, cache and state directories and the
report archive. Also shows any environment variable overrides.`,
	RunE: runConfigPaths,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration settings. Secrets are masked.`,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration",
	Long: `Create a default configuration file in the appropriate location.

This will create a config file at ~/.config/biobank/config.yaml with
sensible defaults. If a config file already exists, use --force to
overwrite it.`,
	Example: `  # Create default config
  biobank config init

  # Force overwrite existing config
  biobank config init --force`,
	RunE: runConfigInit,
}

var (
	configForce bool
)

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing configuration")

	configCmd.AddCommand(configPathsCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

const rule = "────────────────────────────────────────"

// pathEnvVars are the overrides honoured by the paths package.
var pathEnvVars = []string{
	"BIOBANK_CONFIG",
	"BIOBANK_CONFIG_HOME",
	"BIOBANK_DATA_HOME",
	"BIOBANK_CACHE_HOME",
	"BIOBANK_STATE_HOME",
	"BIOBANK_REPORTS_PATH",
}

func printSection(title string, rows [][2]string) {
	fmt.Println(colorize(colorBold, title))
	for _, row := range rows {
		fmt.Printf("  %-12s %s\n", row[0]+":", colorize(colorCyan, row[1]))
	}
}

func runConfigPaths(cmd *cobra.Command, args []string) error {
	p := paths.GetPaths()

	printInfo("Biobank Paths")
	fmt.Println(colorize(colorGray, rule))
	printSection("Base Directories:", [][2]string{
		{"Config", p.ConfigDir},
		{"Data", p.DataDir},
		{"Cache", p.CacheDir},
		{"State", p.StateDir},
	})
	fmt.Println()
	printSection("Files:", [][2]string{
		{"Config file", configPath},
		{"Reports", paths.GetReportsPath()},
	})

	var overrides [][2]string
	for _, name := range pathEnvVars {
		if v := os.Getenv(name); v != "" {
			overrides = append(overrides, [2]string{name, v})
		}
	}
	if len(overrides) > 0 {
		fmt.Println()
		printSection("Environment Overrides:", overrides)
	}
	return nil
}

// maskedConfig returns a copy of c with S3 credentials hidden.
func maskedConfig(c *config.Config) config.Config {
	shown := *c
	for _, secret := range []*string{&shown.S3.SecretAccessKey, &shown.S3.SessionToken} {
		if *secret != "" {
			*secret = "********"
		}
	}
	return shown
}

// highlightYAML colours section headers and key/value pairs.
func highlightYAML(data []byte) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		key, value, found := strings.Cut(line, ": ")
		switch {
		case !strings.HasPrefix(line, " ") && strings.HasSuffix(line, ":"):
			b.WriteString(colorize(colorBold, line))
		case found:
			trimmed := strings.TrimLeft(key, " ")
			b.WriteString(key[:len(key)-len(trimmed)])
			b.WriteString(colorize(colorCyan, trimmed) + ": " + colorize(colorGreen, value))
		default:
			b.WriteString(line)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	printInfo("Configuration")
	fmt.Println(colorize(colorGray, rule))
	fmt.Println(colorize(colorBold, "Config File:"), configPath)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Println(colorize(colorYellow, "  (no config file, showing defaults)"))
	}
	fmt.Println()

	shown := maskedConfig(cfg)
	data, err := yaml.Marshal(&shown)
	if err != nil {
		return errors.E(errors.Op("cli.config.show"), errors.KindConfig, err, "formatting config")
	}
	fmt.Print(highlightYAML(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	target := paths.GetConfigFile()
	if cmd.Flags().Changed("config") || os.Getenv("BIOBANK_CONFIG") != "" {
		target = configPath
	}

	if _, err := os.Stat(target); err == nil && !configForce {
		printWarning("Configuration already exists at %s", target)
		fmt.Println("Use --force to overwrite")
		return nil
	}

	if err := config.DefaultConfig().Save(target); err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		printWarning("%v", err)
	}

	printSuccess("Configuration created at %s", target)
	return nil
}
