// Package branding provides the identity values of the CLI. They are read
// from the embedded branding.yaml, so a fork can rename the tool, its home
// directory and its environment prefix without touching code.
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
	CLIName        string `yaml:"cli_name"`
	DisplayName    string `yaml:"display_name"`
	Description    string `yaml:"description"`
	HomeDir        string `yaml:"home_dir"`
	EnvPrefix      string `yaml:"env_prefix"`
	ProjectFile    string `yaml:"project_file"`
	CatalogRepoURL string `yaml:"catalog_repo_url"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is empty.
		defaults = brand{
			CLIName:     "scenariocat",
			DisplayName: "ScenarioCat",
			Description: "Resolve catalog references for driving-scenario descriptions",
			HomeDir:     ".scenariocat",
			EnvPrefix:   "SCENARIOCAT",
			ProjectFile: "scenariocat.yaml",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name.
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME.
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix.
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// ProjectFile returns the name of the per-project settings file.
func ProjectFile() string { load(); return defaults.ProjectFile }

// CatalogRepoURL returns the default git URL of the shared catalog library.
func CatalogRepoURL() string { load(); return defaults.CatalogRepoURL }

// EnvVar returns a fully qualified env var name, e.g. EnvVar("home") is
// "SCENARIOCAT_HOME".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
