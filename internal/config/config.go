// Package config provides configuration loading from polyq.ini.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/shipq/polyq/dburl"
	"github.com/shipq/polyq/inifile"
	"github.com/shipq/polyq/logging"
)

// ConfigFilename is the name of the config file.
const ConfigFilename = "polyq.ini"

// ErrConfigNotFound is returned when polyq.ini is not found.
var ErrConfigNotFound = errors.New("polyq.ini not found")

// PolyqConfig holds the complete configuration from polyq.ini.
type PolyqConfig struct {
	// ConfigDir is the directory containing polyq.ini. Relative paths are
	// resolved against it.
	ConfigDir string

	Log      LogConfig
	Migrate  MigrateConfig
	Backends []BackendConfig
}

// LogConfig holds the [log] section.
type LogConfig struct {
	Format string
}

// MigrateConfig holds the [migrate] section.
type MigrateConfig struct {
	Schemas         string
	EnforceRequired bool
}

// BackendConfig holds one [backend.<name>] section.
type BackendConfig struct {
	Name    string
	URL     string
	Dialect string
}

// Load reads polyq.ini from the given directory (or CWD if empty).
func Load(dir string) (*PolyqConfig, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	iniPath := filepath.Join(dir, ConfigFilename)
	if _, err := os.Stat(iniPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w in %s\n"+
			"  Hint: Run 'polyq init' to create one, or pass --dir",
			ErrConfigNotFound, dir)
	}

	f, err := inifile.ParseFile(iniPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ConfigFilename, err)
	}

	cfg := &PolyqConfig{
		ConfigDir: dir,
		Log:       LogConfig{Format: logging.FormatJSON},
		Migrate:   MigrateConfig{Schemas: "schemas.yaml"},
	}

	if err := parseLogSection(f, &cfg.Log); err != nil {
		return nil, err
	}
	if err := parseMigrateSection(f, &cfg.Migrate); err != nil {
		return nil, err
	}
	if err := parseBackendSections(f, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseLogSection(f *inifile.File, cfg *LogConfig) error {
	if v := f.Get("log", "format"); v != "" {
		v = strings.ToLower(v)
		if v != logging.FormatJSON && v != logging.FormatPretty {
			return fmt.Errorf("%s: invalid log.format value %q (expected %s or %s)",
				ConfigFilename, v, logging.FormatJSON, logging.FormatPretty)
		}
		cfg.Format = v
	}
	return nil
}

func parseMigrateSection(f *inifile.File, cfg *MigrateConfig) error {
	if v := f.Get("migrate", "schemas"); v != "" {
		cfg.Schemas = v
	}
	if v := f.Get("migrate", "enforce_required"); v != "" {
		b, err := parseBool(v, "migrate.enforce_required")
		if err != nil {
			return err
		}
		cfg.EnforceRequired = b
	}
	return nil
}

// parseBackendSections reads [backend.<name>] sections. Urls may reference
// environment variables as ${VAR}. POLYQ_<NAME>_URL overrides a section's url; DATABASE_URL becomes the primary when no
// backend is configured at all.
func parseBackendSections(f *inifile.File, cfg *PolyqConfig) error {
	for _, s := range f.Subsections("backend") {
		url, err := s.Expand("url", os.LookupEnv)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", ConfigFilename, s.Line, err)
		}
		if env := os.Getenv(EnvVar(s.Name)); env != "" {
			url = env
		}
		if url == "" {
			return fmt.Errorf("%s: [backend.%s] has no url\n"+
				"  Hint: set url = ... or %s", ConfigFilename, s.Name, EnvVar(s.Name))
		}
		if err := cfg.addBackend(s.Name, url); err != nil {
			return err
		}
	}

	if len(cfg.Backends) == 0 {
		if url := os.Getenv("DATABASE_URL"); url != "" {
			return cfg.addBackend("primary", url)
		}
	}
	return nil
}

func (c *PolyqConfig) addBackend(name, url string) error {
	dialect, err := dburl.InferDialect(url)
	if err != nil {
		return fmt.Errorf("%s: backend %s: %w", ConfigFilename, name, err)
	}
	c.Backends = append(c.Backends, BackendConfig{Name: name, URL: url, Dialect: dialect})
	return nil
}

// Backend returns the backend with the given name.
func (c *PolyqConfig) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// SchemasPath returns the schema file path resolved against ConfigDir.
func (c *PolyqConfig) SchemasPath() string {
	if filepath.IsAbs(c.Migrate.Schemas) {
		return c.Migrate.Schemas
	}
	return filepath.Join(c.ConfigDir, c.Migrate.Schemas)
}

var envUnsafe = regexp.MustCompile(`[^A-Z0-9]+`)

// EnvVar returns the environment variable that overrides a backend URL,
// e.g. POLYQ_PRIMARY_URL or POLYQ_EU_REPLICA_URL for "eu-replica".
func EnvVar(backend string) string {
	return "POLYQ_" + envUnsafe.ReplaceAllString(strings.ToUpper(backend), "_") + "_URL"
}

// parseBool parses a boolean value from a string.
func parseBool(s, key string) (bool, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch s {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%s: invalid boolean value for %s: %q (expected true/false/1/0)", ConfigFilename, key, s)
	}
}

// Template returns the starter polyq.ini written by 'polyq init'.
func Template(primaryURL string) *inifile.File {
	f := &inifile.File{}
	f.Set("log", "format", logging.FormatJSON)
	f.Set("migrate", "schemas", "schemas.yaml")
	f.Set("migrate", "enforce_required", "false")
	f.Set("backend.primary", "url", primaryURL)
	return f
}

// Exists checks if polyq.ini exists in the given directory.
func Exists(dir string) (bool, error) {
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return false, err
		}
	}

	iniPath := filepath.Join(dir, ConfigFilename)
	_, err := os.Stat(iniPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
