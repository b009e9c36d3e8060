package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/scenariokit/scenariocat/internal/branding"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Keys.
const (
	KeyCatalogDirs    = "catalog_dirs"
	KeyCatalogAliases = "catalog_aliases"
	KeyStrictBindings = "strict_bindings"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyCatalogRepo    = "catalog_repo"
	KeyIndexCache     = "index_cache"
)

// Settings is the effective configuration.
type Settings struct {
	CatalogDirs    []string          // absolute, highest priority first
	CatalogAliases map[string]string // catalog name -> path
	StrictBindings bool
	LogLevel       string
	LogFormat      string
	CatalogRepo    string
	IndexCache     string
	ProjectDir     string // directory holding the project file, or ""
}

var projectDir string

// Dir returns the path to the user config directory (~/.scenariocat/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the user config file.
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// LibraryDir returns where the shared catalog library is checked out.
func LibraryDir() string {
	return filepath.Join(Dir(), "library")
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyCatalogDirs, []string{"catalogs", filepath.Join(LibraryDir(), "catalogs")})
	v.SetDefault(KeyStrictBindings, true)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyCatalogRepo, branding.CatalogRepoURL())
	v.SetDefault(KeyIndexCache, filepath.Join(Dir(), "index-cache.json"))
}

// Load initializes Viper from the user config file, the project file in
// the working directory or any parent, and the environment.
func Load() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	return LoadFrom(wd)
}

// LoadFrom is Load with an explicit starting directory for the project
// file search.
func LoadFrom(dir string) error {
	viper.Reset()
	setDefaults(viper.GetViper())
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	// The user file is optional.
	if _, err := os.Stat(FilePath()); err == nil {
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", FilePath(), err)
		}
	}

	projectDir = findProject(dir)
	if projectDir != "" {
		path := filepath.Join(projectDir, branding.ProjectFile())
		viper.SetConfigFile(path)
		if err := viper.MergeInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return nil
}

// findProject walks up from dir looking for the project file.
func findProject(dir string) string {
	for {
		if _, err := os.Stat(filepath.Join(dir, branding.ProjectFile())); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Current returns the effective settings. Relative catalog directories and
// alias paths are taken relative to the project directory when there is
// one, else to the working directory.
func Current() Settings {
	base := projectDir
	if base == "" {
		base, _ = os.Getwd()
	}
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	s := Settings{
		StrictBindings: viper.GetBool(KeyStrictBindings),
		LogLevel:       viper.GetString(KeyLogLevel),
		LogFormat:      viper.GetString(KeyLogFormat),
		CatalogRepo:    viper.GetString(KeyCatalogRepo),
		IndexCache:     viper.GetString(KeyIndexCache),
		ProjectDir:     projectDir,
	}
	for _, d := range viper.GetStringSlice(KeyCatalogDirs) {
		s.CatalogDirs = append(s.CatalogDirs, abs(d))
	}
	aliases := viper.GetStringMapString(KeyCatalogAliases)
	if len(aliases) > 0 {
		s.CatalogAliases = make(map[string]string, len(aliases))
		for name, p := range aliases {
			s.CatalogAliases[name] = abs(p)
		}
	}
	return s
}

// Set writes a key-value pair to the user config file. Project values are
// not copied into it.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	configFile := FilePath()
	user := viper.New()
	user.SetConfigFile(configFile)
	user.SetConfigType(fileType)
	if _, err := os.Stat(configFile); err == nil {
		if err := user.ReadInConfig(); err != nil {
			return fmt.Errorf("reading %s: %w", configFile, err)
		}
	}

	user.Set(key, value)
	if err := user.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	viper.Set(key, value)
	return nil
}
