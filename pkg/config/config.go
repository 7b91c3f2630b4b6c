// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < --config < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/storage/s3"
	"github.com/logflow/geoflow/pkg/telemetry"
)

// Config holds all geoflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Input        InputConfig        `yaml:"input"`
	Parse        ParseConfig        `yaml:"parse"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Output       OutputConfig       `yaml:"output"`
	Storage      StorageConfig      `yaml:"storage"`
	Log          LogConfig          `yaml:"log"`
	Telemetry    telemetry.Config   `yaml:"telemetry"`
	Watch        WatchConfig        `yaml:"watch"`
}

// InputConfig selects the files to consolidate.
type InputConfig struct {
	DataDir string `yaml:"data_dir"`
	Limit   int    `yaml:"limit"` // 0 = no limit
}

// ParseConfig controls decoding.
type ParseConfig struct {
	Workers              int    `yaml:"workers"`
	Flatten              string `yaml:"flatten"` // text | expand
	Separator            string `yaml:"separator"`
	CSVDelimiter         string `yaml:"csv_delimiter"` // a single character, "tab" or "auto"
	NormalizeCoordinates bool   `yaml:"normalize_coordinates"`
	ExpandObjectLists    bool   `yaml:"expand_object_lists"`
}

// CapabilitiesConfig enables the optional capabilities.
type CapabilitiesConfig struct {
	Geometry bool `yaml:"geometry"`
	XML      bool `yaml:"xml"`
	Columnar bool `yaml:"columnar"`
}

// OutputConfig controls the written artifacts.
type OutputConfig struct {
	Dir              string `yaml:"dir"`
	Basename         string `yaml:"basename"`
	Compression      string `yaml:"compression"` // snappy | zstd | gzip | lz4 | brotli | none
	BatchSize        int    `yaml:"batch_size"`
	XLSX             bool   `yaml:"xlsx"`
	MetaColumnsFirst bool   `yaml:"meta_columns_first"`
}

// StorageConfig for artifact uploads.
type StorageConfig struct {
	S3 s3.Config `yaml:"s3"`
}

// LogConfig for the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// WatchConfig for watch mode.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Input: InputConfig{
			DataDir: "data",
		},
		Parse: ParseConfig{
			Workers:      1,
			Flatten:      "text",
			Separator:    "_",
			CSVDelimiter: ",",
		},
		Capabilities: CapabilitiesConfig{
			Geometry: true,
			XML:      true,
			Columnar: true,
		},
		Output: OutputConfig{
			Dir:         filepath.Join("data", "processed"),
			Basename:    "master_dataset",
			Compression: "snappy",
			BatchSize:   8192,
		},
		Storage: StorageConfig{
			S3: s3.DefaultConfig(),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: telemetry.DefaultConfig(),
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
	}
}

// Validate checks values a layer could have set to nonsense.
func (c *Config) Validate() error {
	if c.Parse.Workers < 1 {
		return fmt.Errorf("parse.workers must be at least 1, got %d", c.Parse.Workers)
	}
	if c.Parse.Flatten != "text" && c.Parse.Flatten != "expand" {
		return fmt.Errorf("parse.flatten must be text or expand, got %q", c.Parse.Flatten)
	}
	if _, err := ParseDelimiter(c.Parse.CSVDelimiter); err != nil {
		return err
	}
	switch c.Output.Compression {
	case "snappy", "gzip", "lz4", "zstd", "brotli", "none":
	default:
		return fmt.Errorf("output.compression %q is not supported", c.Output.Compression)
	}
	if c.Output.Basename == "" {
		return fmt.Errorf("output.basename must not be empty")
	}
	if c.Input.Limit < 0 {
		return fmt.Errorf("input.limit must not be negative")
	}
	return nil
}

// ParseDelimiter maps a csv_delimiter setting to a rune. "auto" maps to 0,
// which makes the CSV decoder sniff the delimiter per file.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "auto":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if s == "" || size != len(s) || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("parse.csv_delimiter must be one character, \"tab\" or \"auto\", got %q", s)
	}
	return r, nil
}

// DecodeOptions builds decoder options from the parse settings.
func (c *Config) DecodeOptions() core.DecodeOptions {
	opts := core.DefaultDecodeOptions()
	opts.Flatten = core.ParseFlattenMode(c.Parse.Flatten)
	if c.Parse.Separator != "" {
		opts.Separator = c.Parse.Separator
	}
	if d, err := ParseDelimiter(c.Parse.CSVDelimiter); err == nil {
		opts.Delimiter = d
	}
	opts.NormalizeCoordinates = c.Parse.NormalizeCoordinates
	return opts
}

// SinkOptions builds writer options from the output settings.
func (c *Config) SinkOptions() core.SinkOptions {
	opts := core.DefaultSinkOptions()
	opts.Compression = core.ParseCompression(c.Output.Compression)
	if c.Output.BatchSize > 0 {
		opts.BatchSize = c.Output.BatchSize
	}
	return opts
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded

	searchPaths func() []string
	getenv      func(string) string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	m := &Manager{
		config: Default(),
		getenv: os.Getenv,
	}
	m.searchPaths = m.defaultPaths
	return m
}

// Load loads configuration from all sources in priority order. explicit,
// when set, is loaded after the search paths and must exist.
func (m *Manager) Load(explicit string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.searchPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	if explicit != "" {
		if err := m.loadFile(explicit); err != nil {
			return err
		}
		m.paths = append(m.paths, explicit)
	}

	if err := m.loadEnv(); err != nil {
		return err
	}
	return m.config.Validate()
}

// defaultPaths returns config file paths in priority order.
func (m *Manager) defaultPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/geoflow/config.yaml")
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".geoflow", "config.yaml"))
	}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".geoflow.yaml"))
	}
	return paths
}

// loadFile decodes a config file over the current values, so only the keys
// present in the file change.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, m.config); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

type envSetter func(c *Config, v string) error

func envString(dst func(c *Config) *string) envSetter {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func envInt(dst func(c *Config) *int) envSetter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func envBool(dst func(c *Config) *bool, invert bool) envSetter {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b != invert
		return nil
	}
}

var envVars = []struct {
	name string
	set  envSetter
}{
	{"GEOFLOW_DATA_DIR", envString(func(c *Config) *string { return &c.Input.DataDir })},
	{"GEOFLOW_OUT_DIR", envString(func(c *Config) *string { return &c.Output.Dir })},
	{"GEOFLOW_LIMIT", envInt(func(c *Config) *int { return &c.Input.Limit })},
	{"GEOFLOW_WORKERS", envInt(func(c *Config) *int { return &c.Parse.Workers })},
	{"GEOFLOW_FLATTEN", envString(func(c *Config) *string { return &c.Parse.Flatten })},
	{"GEOFLOW_CSV_DELIMITER", envString(func(c *Config) *string { return &c.Parse.CSVDelimiter })},
	{"GEOFLOW_COMPRESSION", envString(func(c *Config) *string { return &c.Output.Compression })},
	{"GEOFLOW_XLSX", envBool(func(c *Config) *bool { return &c.Output.XLSX }, false)},
	{"GEOFLOW_NO_GEOMETRY", envBool(func(c *Config) *bool { return &c.Capabilities.Geometry }, true)},
	{"GEOFLOW_NO_XML", envBool(func(c *Config) *bool { return &c.Capabilities.XML }, true)},
	{"GEOFLOW_NO_COLUMNAR", envBool(func(c *Config) *bool { return &c.Capabilities.Columnar }, true)},
	{"GEOFLOW_LOG_LEVEL", envString(func(c *Config) *string { return &c.Log.Level })},
	{"GEOFLOW_LOG_FORMAT", envString(func(c *Config) *string { return &c.Log.Format })},
	{"GEOFLOW_S3_BUCKET", envString(func(c *Config) *string { return &c.Storage.S3.Bucket })},
	{"GEOFLOW_S3_PREFIX", envString(func(c *Config) *string { return &c.Storage.S3.Prefix })},
	{"GEOFLOW_S3_REGION", envString(func(c *Config) *string { return &c.Storage.S3.Region })},
	{"GEOFLOW_S3_ENDPOINT", envString(func(c *Config) *string { return &c.Storage.S3.Endpoint })},
	{"GEOFLOW_OTLP_ENDPOINT", func(c *Config, v string) error {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
		return nil
	}},
}

// loadEnv applies GEOFLOW_* environment variables.
func (m *Manager) loadEnv() error {
	for _, ev := range envVars {
		v := strings.TrimSpace(m.getenv(ev.name))
		if v == "" {
			continue
		}
		if err := ev.set(m.config, v); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Dump renders the effective configuration as YAML with secrets masked.
func (m *Manager) Dump() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := *m.config
	if c.Storage.S3.SecretAccessKey != "" {
		c.Storage.S3.SecretAccessKey = "****"
	}
	if c.Storage.S3.SessionToken != "" {
		c.Storage.S3.SessionToken = "****"
	}
	return yaml.Marshal(&c)
}
