// Package branding provides compile-time identity values for the CLI.
//
// Forkers edit branding.yaml in this package and rebuild; Go's //go:embed
// bakes the file into the binary so a renamed deployment needs no code
// changes.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName     string `yaml:"cli_name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	HomeDir     string `yaml:"home_dir"`
	EnvPrefix   string `yaml:"env_prefix"`
	GoModule    string `yaml:"go_module"`
	RepoBaseURL string `yaml:"repo_base_url"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = brand{
			CLIName:     "reefcat",
			DisplayName: "Reefcat",
			Description: "Consolidates vehicle extension metadata into a published manifest",
			HomeDir:     ".reefcat",
			EnvPrefix:   "REEFCAT",
			GoModule:    "github.com/reefcat/reefcat",
			RepoBaseURL: "https://raw.githubusercontent.com/reefcat/extensions-repository/master/repos",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "reefcat").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "Reefcat").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".reefcat").
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "REEFCAT").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path.
func GoModule() string { load(); return defaults.GoModule }

// RepoBaseURL returns the public base URL where the metadata tree is
// served, used to turn logo file paths into absolute URLs.
func RepoBaseURL() string { load(); return defaults.RepoBaseURL }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("HOME") → "REEFCAT_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
