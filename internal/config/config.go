// Package config provides configuration management for adogate.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the configuration file written by `adogate config init`.
const DefaultFile = ".adogate.yaml"

// Config represents the adogate configuration.
type Config struct {
	// General settings
	Verbose bool `yaml:"verbose,omitempty" json:"verbose,omitempty"`

	// Reporter selects the log annotation format: auto, azure, github or console.
	Reporter string `yaml:"reporter,omitempty" json:"reporter,omitempty"`

	Azure   AzureConfig   `yaml:"azure" json:"azure"`
	Gate    GateConfig    `yaml:"gate" json:"gate"`
	Reports ReportsConfig `yaml:"reports,omitempty" json:"reports,omitempty"`
}

// AzureConfig contains Azure DevOps connection settings.
type AzureConfig struct {
	BaseURL       string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	CollectionURL string `yaml:"collectionUrl,omitempty" json:"collectionUrl,omitempty"`
	Organization  string `yaml:"organization,omitempty" json:"organization,omitempty"`
	Project       string `yaml:"project,omitempty" json:"project,omitempty"`
	APIVersion    string `yaml:"apiVersion,omitempty" json:"apiVersion,omitempty"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Token is never read from or written to the file.
	Token string `yaml:"-" json:"-"`
}

// GateConfig contains quality gate configuration.
type GateConfig struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	Mode string `yaml:"mode,omitempty" json:"mode,omitempty"`

	// Plans is a comma-separated list of test plan ids.
	Plans string `yaml:"plans,omitempty" json:"plans,omitempty"`
	// Suites is a comma-separated list of planId:suiteId pairs.
	Suites string `yaml:"suites,omitempty" json:"suites,omitempty"`
	Query  string `yaml:"query,omitempty" json:"query,omitempty"`

	ExcludeOutcomes []string `yaml:"excludeOutcomes,omitempty" json:"excludeOutcomes,omitempty"`
	StrictMode      bool     `yaml:"strictMode,omitempty" json:"strictMode,omitempty"`
}

// ReportsConfig contains report artifact configuration.
type ReportsConfig struct {
	Formats   []string `yaml:"formats,omitempty" json:"formats,omitempty"`
	OutputDir string   `yaml:"outputDir,omitempty" json:"outputDir,omitempty"`
}

var (
	knownReporters = []string{"auto", "azure", "github", "console"}
	knownFormats   = []string{"console", "json", "html"}
)

// Default returns a config with default values.
func Default() *Config {
	return &Config{
		Reporter: "auto",
		Azure: AzureConfig{
			BaseURL:    "https://dev.azure.com",
			APIVersion: "5.0",
			Timeout:    60,
		},
		Gate: GateConfig{
			Name: "Quality Gate",
			Mode: "query",
		},
		Reports: ReportsConfig{
			Formats:   []string{"console"},
			OutputDir: ".",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	// If no config file specified, try default locations
	if configFile == "" {
		candidates := []string{DefaultFile, ".adogate.yml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				configFile = candidate

				break
			}
		}
	}

	if configFile != "" {
		if err := cfg.loadFromFile(configFile); err != nil {
			return nil, err
		}
	}

	cfg.applyDefaults()

	return cfg, nil
}

func (c *Config) loadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config file: %w", err)
	}

	return nil
}

// applyDefaults fills in zero values left by a partial config file.
func (c *Config) applyDefaults() {
	if c.Reporter == "" {
		c.Reporter = "auto"
	}

	if c.Azure.BaseURL == "" {
		c.Azure.BaseURL = "https://dev.azure.com"
	}

	if c.Azure.APIVersion == "" {
		c.Azure.APIVersion = "5.0"
	}

	if c.Azure.Timeout <= 0 {
		c.Azure.Timeout = 60
	}

	if c.Gate.Name == "" {
		c.Gate.Name = "Quality Gate"
	}

	if c.Gate.Mode == "" {
		c.Gate.Mode = "query"
	}

	if len(c.Reports.Formats) == 0 {
		c.Reports.Formats = []string{"console"}
	}

	if c.Reports.OutputDir == "" {
		c.Reports.OutputDir = "."
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error

	if c.Azure.CollectionURL == "" && c.Azure.Organization == "" {
		errs = append(errs, errors.New("azure.organization or azure.collectionUrl is required"))
	}

	if c.Azure.Project == "" {
		errs = append(errs, errors.New("azure.project is required"))
	}

	if !slices.Contains(knownReporters, strings.ToLower(c.Reporter)) {
		errs = append(errs, fmt.Errorf("unknown reporter %q (want one of %s)", c.Reporter, strings.Join(knownReporters, ", ")))
	}

	for _, format := range c.Reports.Formats {
		if !slices.Contains(knownFormats, strings.ToLower(format)) {
			errs = append(errs, fmt.Errorf("unknown report format %q (want one of %s)", format, strings.Join(knownFormats, ", ")))
		}
	}

	return errors.Join(errs...)
}

// CollectionURL returns the organization URL requests are rooted at.
func (c *Config) CollectionURL() string {
	if c.Azure.CollectionURL != "" {
		return strings.TrimRight(c.Azure.CollectionURL, "/")
	}

	return strings.TrimRight(c.Azure.BaseURL, "/") + "/" + c.Azure.Organization
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write YAML config file: %w", err)
	}

	return nil
}
