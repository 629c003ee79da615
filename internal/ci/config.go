// Package ci provides CI/CD integration functionality.
package ci

import (
	"os"
	"strconv"
	"strings"
)

// Provider identifies the pipeline system the gate runs in.
type Provider string

// Supported providers.
const (
	ProviderAzurePipelines Provider = "azure"
	ProviderGitHubActions  Provider = "github"
	ProviderConsole        Provider = "console"
)

// Config represents the pipeline environment, read from predefined variables.
type Config struct {
	Provider Provider

	// Azure Pipelines exposes the organization, project and job token.
	CollectionURI string
	TeamProject   string
	AccessToken   string

	BuildID    string
	Repository string
	Branch     string
	Actor      string
}

// LoadConfigFromEnv creates a new CI config from environment variables.
func LoadConfigFromEnv() *Config {
	switch {
	case getEnvBool("TF_BUILD", false):
		return &Config{
			Provider:      ProviderAzurePipelines,
			CollectionURI: getEnv("SYSTEM_COLLECTIONURI", ""),
			TeamProject:   getEnv("SYSTEM_TEAMPROJECT", ""),
			AccessToken:   getEnv("SYSTEM_ACCESSTOKEN", ""),
			BuildID:       getEnv("BUILD_BUILDID", ""),
			Repository:    getEnv("BUILD_REPOSITORY_NAME", ""),
			Branch:        getEnv("BUILD_SOURCEBRANCHNAME", ""),
			Actor:         getEnv("BUILD_REQUESTEDFOR", ""),
		}
	case getEnvBool("GITHUB_ACTIONS", false):
		return &Config{
			Provider:   ProviderGitHubActions,
			BuildID:    getEnv("GITHUB_RUN_ID", ""),
			Repository: getEnv("GITHUB_REPOSITORY", ""),
			Branch:     getEnv("GITHUB_REF_NAME", ""),
			Actor:      getEnv("GITHUB_ACTOR", ""),
		}
	default:
		return &Config{Provider: ProviderConsole}
	}
}

// IsCI returns true if a pipeline provider was detected.
func (c *Config) IsCI() bool {
	return c.Provider != ProviderConsole
}

// ResolveProvider maps a configured reporter name to a provider.
// "auto" and empty names use the detected provider.
func (c *Config) ResolveProvider(name string) Provider {
	switch strings.ToLower(name) {
	case "azure":
		return ProviderAzurePipelines
	case "github":
		return ProviderGitHubActions
	case "console":
		return ProviderConsole
	default:
		return c.Provider
	}
}

// getEnv gets environment variable with default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// getEnvBool gets environment variable as boolean with default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}

	return defaultValue
}
