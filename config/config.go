package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kastheco/specwave/internal/patch"
	"github.com/kastheco/specwave/internal/structure"
	"github.com/kastheco/specwave/internal/wave"
	"github.com/kastheco/specwave/log"
)

const (
	// ConfigFileName is the global config file inside GetConfigDir.
	ConfigFileName = "config.toml"
	// ProjectFileName is the per-project overlay, found by walking up from
	// the working directory.
	ProjectFileName = ".specwave.toml"
)

var markerPrefixRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// GetConfigDir returns the path to the application's configuration directory
// (~/.config/specwave).
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "specwave"), nil
}

// Config represents the application configuration.
type Config struct {
	// MetadataDir holds one YAML record per unit.
	MetadataDir string `toml:"metadata_dir"`
	// SpecDir is where spec files are generated, mirroring SourceDirs.
	SpecDir string `toml:"spec_dir"`
	// SourceDirs are the source roots stripped when deriving spec paths.
	SourceDirs []string `toml:"source_dirs"`
	// SharedExampleThreshold is the number of leaf contexts an example must
	// repeat in before it becomes a shared example. Zero disables sharing.
	SharedExampleThreshold int `toml:"shared_example_threshold"`
	// ConflictPolicy is the default patch conflict policy: error, overwrite
	// or skip.
	ConflictPolicy string `toml:"conflict_policy"`
	// MarkerPrefix namespaces block markers in generated files.
	MarkerPrefix string `toml:"marker_prefix"`
	// Parallelism bounds the number of units processed at once in a wave.
	Parallelism int `toml:"parallelism"`
	// VerifyCommand runs after a spec file is patched. {spec_file} is
	// replaced by the file path. Empty disables verification.
	VerifyCommand string `toml:"verify_command"`
	// EntryPointPatterns are regular expressions matching entry-point class
	// names (controllers, jobs).
	EntryPointPatterns []string `toml:"entry_point_patterns"`
	// TerminalKeywords and SuccessKeywords drive the default terminal
	// classifier.
	TerminalKeywords []string `toml:"terminal_keywords"`
	SuccessKeywords  []string `toml:"success_keywords"`
	// AuditDB is the sqlite audit log path. Empty uses audit.db in the
	// config directory; "off" disables auditing.
	AuditDB string `toml:"audit_db"`
	// TelemetryEnabled controls whether crash reporting via Sentry is active.
	// Defaults to true when not set; Sentry still needs a DSN.
	TelemetryEnabled *bool  `toml:"telemetry_enabled,omitempty"`
	SentryDSN        string `toml:"sentry_dsn,omitempty"`

	// Root is the project root: the directory holding the project file, or
	// the working directory when there is none.
	Root string `toml:"-"`
	// Sources lists the config files that were applied, in order.
	Sources []string `toml:"-"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataDir:            filepath.Join("tmp", "specwave", "metadata"),
		SpecDir:                "spec",
		SourceDirs:             []string{"app", "lib"},
		SharedExampleThreshold: structure.DefaultSharedExampleThreshold,
		ConflictPolicy:         string(patch.ConflictAbort),
		MarkerPrefix:           patch.DefaultPrefix,
		Parallelism:            4,
		EntryPointPatterns:     []string{`Controller$`, `Handler$`, `Job$`},
	}
}

// IsTelemetryEnabled returns whether Sentry telemetry is enabled.
// Defaults to true when the field is not set.
func (c *Config) IsTelemetryEnabled() bool {
	if c.TelemetryEnabled == nil {
		return true
	}
	return *c.TelemetryEnabled
}

// ResolvePath makes p absolute against the project root.
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Root == "" {
		return p
	}
	return filepath.Join(c.Root, p)
}

// MetadataPath is the resolved metadata directory.
func (c *Config) MetadataPath() string {
	return c.ResolvePath(c.MetadataDir)
}

// AuditDBPath is the resolved audit database path, or "" when auditing is
// off.
func (c *Config) AuditDBPath() string {
	switch c.AuditDB {
	case "off":
		return ""
	case "":
		dir, err := GetConfigDir()
		if err != nil {
			return ""
		}
		return filepath.Join(dir, "audit.db")
	}
	return c.ResolvePath(c.AuditDB)
}

// ProjectName names the project in telemetry and the audit log.
func (c *Config) ProjectName() string {
	if c.Root == "" {
		return ""
	}
	return filepath.Base(c.Root)
}

// SpecPathFor maps a source file to its spec file:
// app/models/user.rb becomes spec/models/user_spec.rb.
func (c *Config) SpecPathFor(sourceFile string) string {
	rel := filepath.ToSlash(filepath.Clean(sourceFile))
	for _, dir := range c.SourceDirs {
		prefix := strings.TrimSuffix(filepath.ToSlash(dir), "/") + "/"
		if strings.HasPrefix(rel, prefix) {
			rel = strings.TrimPrefix(rel, prefix)
			break
		}
	}
	ext := filepath.Ext(rel)
	return filepath.Join(c.SpecDir, filepath.FromSlash(strings.TrimSuffix(rel, ext)+"_spec"+ext))
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.MetadataDir == "" {
		errs = append(errs, errors.New("metadata_dir must not be empty"))
	}
	if _, err := patch.ParseConflictPolicy(c.ConflictPolicy); err != nil {
		errs = append(errs, fmt.Errorf("conflict_policy: %w", err))
	}
	if !markerPrefixRegex.MatchString(c.MarkerPrefix) {
		errs = append(errs, fmt.Errorf("marker_prefix %q must match %s", c.MarkerPrefix, markerPrefixRegex))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism))
	}
	if c.SharedExampleThreshold < 0 {
		errs = append(errs, fmt.Errorf("shared_example_threshold must be 0 (off) or more, got %d", c.SharedExampleThreshold))
	}
	if _, err := wave.CompileEntryPoints(c.EntryPointPatterns); err != nil {
		errs = append(errs, fmt.Errorf("entry_point_patterns: %w", err))
	}
	return errors.Join(errs...)
}

// FindProjectConfig walks up from dir to the closest project file. It
// returns "" when there is none.
func FindProjectConfig(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadFrom applies the defaults, then each existing file in order (later
// files override earlier ones key by key), then environment overrides.
// Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := DefaultConfig()
	for i, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
		cfg.Sources = append(cfg.Sources, path)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Load resolves the configuration for the project containing dir: defaults,
// then the global file, then the closest project file.
func Load(dir string) (*Config, error) {
	var paths []string
	if configDir, err := GetConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else {
		log.WarningLog.Printf("failed to get config directory: %v", err)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project dir: %w", err)
	}
	if project := FindProjectConfig(root); project != "" {
		paths = append(paths, project)
		root = filepath.Dir(project)
	}

	cfg, err := LoadFrom(paths...)
	if err != nil {
		return nil, err
	}
	cfg.Root = root
	return cfg, nil
}

// LoadConfig is Load for the working directory. Errors are logged and the
// defaults returned.
func LoadConfig() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		log.ErrorLog.Printf("failed to get working directory: %v", err)
		cwd = "."
	}
	cfg, err := Load(cwd)
	if err != nil {
		log.ErrorLog.Printf("failed to load config: %v", err)
		cfg = DefaultConfig()
		cfg.Root = cwd
	}
	return cfg
}

// applyEnvOverrides applies SPECWAVE_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SPECWAVE_METADATA_DIR"); v != "" {
		cfg.MetadataDir = v
	}
	if v := os.Getenv("SPECWAVE_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Parallelism = n
		}
	}
	if v := os.Getenv("SPECWAVE_SENTRY_DSN"); v != "" {
		cfg.SentryDSN = v
	}
	if v := os.Getenv("SPECWAVE_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.TelemetryEnabled = &b
		}
	}
}

// WriteTOML encodes the configuration as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// SaveTo writes the configuration to path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()
	return c.WriteTOML(f)
}
