package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/user/sdtmflow/pkg/secrets"
	"gopkg.in/yaml.v3"
)

// Config describes one pipeline run: which forms map to which domains, where output goes, and
// the collaborators around the core.
type Config struct {
	StudyID   string         `json:"study_id" yaml:"study_id"`
	Threshold float64        `json:"threshold" yaml:"threshold"`
	Workers   int            `json:"workers" yaml:"workers"`
	Timeout   time.Duration  `json:"timeout" yaml:"timeout"`
	Codelists string         `json:"codelists" yaml:"codelists"`
	Reference string         `json:"reference" yaml:"reference"`
	MaskPII   bool           `json:"mask_pii" yaml:"mask_pii"`
	Domains   []DomainConfig `json:"domains" yaml:"domains"`
	Output    OutputConfig   `json:"output" yaml:"output"`
	Publish   PublishConfig  `json:"publish" yaml:"publish"`
	History   DBConfig       `json:"history" yaml:"history"`
	Metrics   MetricsConfig  `json:"metrics" yaml:"metrics"`
	OTLP      OTLPConfig     `json:"otlp" yaml:"otlp"`
	Log       LogConfig      `json:"log" yaml:"log"`
	Secrets   secrets.Config `json:"secrets" yaml:"secrets"`
}

// DomainConfig binds a mapping spec (built-in domain code or file path) to a source file.
// Inputs ending in .xlsx are read from Sheet (the first sheet when empty) with the header on
// HeaderRow; anything else is a delimited file.
type DomainConfig struct {
	Spec      string `json:"spec" yaml:"spec"`
	Input     string `json:"input" yaml:"input"`
	Delimiter string `json:"delimiter" yaml:"delimiter"`
	Sheet     string `json:"sheet" yaml:"sheet"`
	HeaderRow int    `json:"header_row" yaml:"header_row"`
}

// OutputConfig selects where datasets go. Dir "-" streams NDJSON records to stdout and skips the
// report files. Format "sql" writes each domain to a table in Database instead of a file.
type OutputConfig struct {
	Dir         string   `json:"dir" yaml:"dir"`
	Format      string   `json:"format" yaml:"format"`
	Database    DBConfig `json:"database" yaml:"database"`
	TablePrefix string   `json:"table_prefix" yaml:"table_prefix"`
}

// PublishConfig selects where artifacts are copied after a run. An empty type disables publishing.
type PublishConfig struct {
	Type        string   `json:"type" yaml:"type"`
	LocalDir    string   `json:"local_dir" yaml:"local_dir"`
	Prefix      string   `json:"prefix" yaml:"prefix"`
	Compression string   `json:"compression" yaml:"compression"`
	S3          S3Config `json:"s3" yaml:"s3"`
}

type S3Config struct {
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	Region          string `json:"region" yaml:"region"`
	Bucket          string `json:"bucket" yaml:"bucket"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

type MetricsConfig struct {
	PushURL string `json:"push_url" yaml:"push_url"`
	Job     string `json:"job" yaml:"job"`
}

type OTLPConfig struct {
	Endpoint    string            `json:"endpoint" yaml:"endpoint"`
	Protocol    string            `json:"protocol" yaml:"protocol"`
	Insecure    bool              `json:"insecure" yaml:"insecure"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	ServiceName string            `json:"service_name" yaml:"service_name"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Pretty bool   `json:"pretty" yaml:"pretty"`
}

// Output formats.
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatJSON    = "json"
	FormatSQL     = "sql"
)

// StdoutDir as the output directory streams records to stdout.
const StdoutDir = "-"

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads a YAML (or JSON) run configuration, substitutes ${VAR} references, applies
// SDTM_* environment overrides and defaults, then validates the result. Relative paths are
// resolved against the configuration file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes configuration bytes. YAML is tried first; JSON is accepted as a fallback.
func Parse(data []byte) (*Config, error) {
	content := []byte(SubstituteEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		if jerr := json.Unmarshal(content, &cfg); jerr != nil {
			return nil, fmt.Errorf("failed to decode config file (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.StudyID == "" {
		c.StudyID = "STUDY"
	}
	if c.Threshold == 0 {
		c.Threshold = 95
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Output.Format == "" {
		c.Output.Format = FormatCSV
	}
	for i := range c.Domains {
		if c.Domains[i].Delimiter == "" {
			c.Domains[i].Delimiter = ","
		}
	}
	if c.Publish.Type == "local" && c.Publish.LocalDir == "" {
		c.Publish.LocalDir = "published"
	}
	if c.History.Type != "" && c.History.Conn == "" && c.History.Type == "sqlite" {
		c.History.Conn = DefaultHistoryPath
	}
	if c.Output.Format == FormatSQL && c.Output.Database.Type == "sqlite" && c.Output.Database.Conn == "" {
		c.Output.Database.Conn = "sdtm.db"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "sdtmflow"
	}
	if c.OTLP.ServiceName == "" {
		c.OTLP.ServiceName = "sdtmflow"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.Threshold < 0 || c.Threshold > 100 {
		errs = append(errs, fmt.Errorf("threshold must be within [0,100], got %v", c.Threshold))
	}
	switch c.Output.Format {
	case FormatCSV, FormatParquet, FormatJSON:
	case FormatSQL:
		if _, err := c.Output.Database.Driver(); err != nil {
			errs = append(errs, fmt.Errorf("output.database: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown output format: %s", c.Output.Format))
	}
	switch c.Publish.Type {
	case "", "local":
	case "s3":
		if c.Publish.S3.Bucket == "" {
			errs = append(errs, errors.New("publish.s3.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type: %s", c.Publish.Type))
	}
	seen := make(map[string]bool)
	for i, d := range c.Domains {
		if d.Spec == "" {
			errs = append(errs, fmt.Errorf("domains[%d]: spec is required", i))
		}
		if d.Input == "" {
			errs = append(errs, fmt.Errorf("domains[%d]: input is required", i))
		}
		if len([]rune(d.Delimiter)) != 1 {
			errs = append(errs, fmt.Errorf("domains[%d]: delimiter must be a single character", i))
		}
		if d.HeaderRow < 0 {
			errs = append(errs, fmt.Errorf("domains[%d]: header_row must not be negative", i))
		}
		if seen[d.Spec] {
			errs = append(errs, fmt.Errorf("domains[%d]: spec %s listed twice", i, d.Spec))
		}
		seen[d.Spec] = true
	}
	if c.History.Type != "" {
		if _, err := c.History.Driver(); err != nil {
			errs = append(errs, err)
		}
	}
	fields, _ := c.secretFields()
	if err := secrets.Check(fields...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) resolvePaths(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Codelists = abs(c.Codelists)
	c.Reference = abs(c.Reference)
	if c.Output.Dir != StdoutDir {
		c.Output.Dir = abs(c.Output.Dir)
	}
	for i := range c.Domains {
		c.Domains[i].Input = abs(c.Domains[i].Input)
		if filepath.Ext(c.Domains[i].Spec) != "" {
			c.Domains[i].Spec = abs(c.Domains[i].Spec)
		}
	}
	if c.Publish.Type == "local" {
		c.Publish.LocalDir = abs(c.Publish.LocalDir)
	}
	for _, db := range []*DBConfig{&c.History, &c.Output.Database} {
		if driver, _ := db.Driver(); driver == "sqlite" && !strings.HasPrefix(db.Conn, ":memory:") &&
			!strings.HasPrefix(db.Conn, "file:") && !secrets.IsReference(db.Conn) {
			db.Conn = abs(db.Conn)
		}
	}
}

// DelimiterRune returns the delimiter as a rune.
func (d DomainConfig) DelimiterRune() rune {
	for _, r := range d.Delimiter {
		return r
	}
	return ','
}
