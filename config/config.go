// Package config loads the settings of the flowlaws command.
//
// Settings are layered, later layers winning:
//
//  1. Defaults
//  2. Config file (--config or FLOWLAWS_CONFIG): JSON with comments
//     (.json, .jsonc) or YAML (.yaml, .yml)
//  3. Environment variables (FLOWLAWS_*), optionally seeded from a .env file
//     (--env-file). Variables already set in the process environment win over
//     the .env file.
//  4. Command-line flags that were set explicitly
//
// The result is validated before it is returned.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/dshills/flowlaws/laws/shapes"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "FLOWLAWS_"

var (
	// ErrInvalid is returned when a setting has a bad value.
	ErrInvalid = errors.New("invalid configuration")

	// ErrUnknownFormat is returned for config files with an unsupported
	// extension.
	ErrUnknownFormat = errors.New("unknown config file format")
)

// Known values.
var (
	Platforms  = []string{"local", "concurrent"}
	Drivers    = []string{"memory", "sqlite", "mysql", "postgres"}
	LogFormats = []string{"text", "json", "otel", "none"}
	Services   = []string{"static", "delayed", "http"}
)

// Config holds every setting of a flowlaws run.
type Config struct {
	// Trials is the number of trials per law and platform.
	Trials int `json:"trials" yaml:"trials"`

	// Seed is the seed of the first trial.
	Seed int `json:"seed" yaml:"seed"`

	// Platforms lists the platforms under test.
	Platforms []string `json:"platforms" yaml:"platforms"`

	// Shapes restricts the suite to these shapes. Empty means all.
	Shapes []string `json:"shapes" yaml:"shapes"`

	// StrictKeys rejects non-zero store keys the reference never produced.
	StrictKeys bool `json:"strict_keys" yaml:"strict_keys"`

	Store      StoreConfig      `json:"store" yaml:"store"`
	Concurrent ConcurrentConfig `json:"concurrent" yaml:"concurrent"`

	// Service is the lookup service backing the join shapes: static,
	// delayed, or http.
	Service string `json:"service" yaml:"service"`

	// Report is the path of the JSON report. Empty disables the report.
	Report string `json:"report" yaml:"report"`

	// MetricsAddr is the listen address of the /metrics endpoint. Empty
	// disables it.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`

	// LogFormat is text, json, otel, or none. otel records every event as
	// an OpenTelemetry span.
	LogFormat string `json:"log_format" yaml:"log_format"`
}

// StoreConfig selects the aggregate store backend.
type StoreConfig struct {
	// Driver is memory, sqlite, mysql, or postgres.
	Driver string `json:"driver" yaml:"driver"`

	// DSN is the data source name. For sqlite it is the database path.
	DSN string `json:"dsn" yaml:"dsn"`
}

// ConcurrentConfig tunes the concurrent platform.
type ConcurrentConfig struct {
	Workers   int `json:"workers" yaml:"workers"`
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxAttempts bounds attempts of each sink write, store merge and
	// lookup. 1 disables retries.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryDelayMs is the base backoff delay in milliseconds.
	RetryDelayMs int `json:"retry_delay_ms" yaml:"retry_delay_ms"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Trials:     100,
		Seed:       1,
		Platforms:  append([]string(nil), Platforms...),
		StrictKeys: true,
		Store:      StoreConfig{Driver: "memory"},
		Concurrent: ConcurrentConfig{Workers: 4, BatchSize: 4, MaxAttempts: 1, RetryDelayMs: 5},
		Service:    "static",
		LogFormat:  "text",
	}
}

// LookupEnv reads one environment variable. os.LookupEnv satisfies it.
type LookupEnv func(key string) (string, bool)

// flagValues receives the command-line flags.
type flagValues struct {
	configPath string
	envFile    string
	cfg        Config
}

func newFlagSet(v *flagValues) *flag.FlagSet {
	d := Default()
	fs := flag.NewFlagSet("flowlaws", flag.ContinueOnError)
	fs.SetOutput(bytes.NewBuffer(nil))
	fs.SortFlags = false

	fs.StringVarP(&v.configPath, "config", "c", "", "config file (.json, .jsonc, .yaml, .yml)")
	fs.StringVar(&v.envFile, "env-file", "", "load FLOWLAWS_* variables from this .env file")
	fs.IntVarP(&v.cfg.Trials, "trials", "n", d.Trials, "trials per law and platform")
	fs.IntVar(&v.cfg.Seed, "seed", d.Seed, "seed of the first trial")
	fs.StringSliceVarP(&v.cfg.Platforms, "platforms", "p", d.Platforms, "platforms under test")
	fs.StringSliceVar(&v.cfg.Shapes, "shapes", nil, "shapes to check (default all)")
	fs.BoolVar(&v.cfg.StrictKeys, "strict-keys", d.StrictKeys, "reject non-zero keys the reference never produced")
	fs.StringVar(&v.cfg.Store.Driver, "store", d.Store.Driver, "store driver: memory, sqlite, mysql, postgres")
	fs.StringVar(&v.cfg.Store.DSN, "dsn", "", "store data source name")
	fs.IntVar(&v.cfg.Concurrent.Workers, "workers", d.Concurrent.Workers, "concurrent platform workers")
	fs.IntVar(&v.cfg.Concurrent.BatchSize, "batch-size", d.Concurrent.BatchSize, "concurrent platform maximum batch size")
	fs.StringVar(&v.cfg.Service, "service", d.Service, "lookup service: static, delayed, http")
	fs.StringVarP(&v.cfg.Report, "report", "o", "", "write a JSON report to this path")
	fs.StringVar(&v.cfg.MetricsAddr, "metrics-addr", "", "serve /metrics on this address")
	fs.IntVar(&v.cfg.Concurrent.MaxAttempts, "max-attempts", d.Concurrent.MaxAttempts, "attempts per engine write, merge and lookup (1 = no retries)")
	fs.IntVar(&v.cfg.Concurrent.RetryDelayMs, "retry-delay-ms", d.Concurrent.RetryDelayMs, "base retry backoff in milliseconds")
	fs.StringVar(&v.cfg.LogFormat, "log-format", d.LogFormat, "event log format: text, json, otel, none")
	return fs
}

// Usage returns the flag help text.
func Usage() string {
	return newFlagSet(&flagValues{}).FlagUsages()
}

// Load builds the configuration from args (without the program name) and
// the environment. It returns flag.ErrHelp, wrapped, for -h and --help.
func Load(args []string, lookup LookupEnv) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var v flagValues
	fs := newFlagSet(&v)
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	if fs.NArg() > 0 {
		return Config{}, fmt.Errorf("%w: unexpected arguments %q", ErrInvalid, fs.Args())
	}

	if v.envFile != "" {
		dotenv, err := godotenv.Read(v.envFile)
		if err != nil {
			return Config{}, fmt.Errorf("read env file %s: %w", v.envFile, err)
		}
		lookup = withFallback(lookup, dotenv)
	}

	cfg := Default()

	path := v.configPath
	if path == "" {
		path, _ = lookup(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	applyFlags(&cfg, fs, v.cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func withFallback(primary LookupEnv, fallback map[string]string) LookupEnv {
	return func(key string) (string, bool) {
		if v, ok := primary(key); ok {
			return v, true
		}
		v, ok := fallback[key]
		return v, ok
	}
}

// loadFile overlays the settings present in the file at path onto cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) // #nosec G304 -- path is chosen by the user
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json", ".jsonc":
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("%w %s: invalid JSONC: %w", ErrInvalid, path, err)
		}
		dec := json.NewDecoder(bytes.NewReader(standardized))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w %s: %w", ErrInvalid, path, err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, ext)
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupEnv) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, EnvPrefix, name, v)
		}
		*dst = n
		return nil
	}

	for name, dst := range map[string]*int{
		"TRIALS":         &cfg.Trials,
		"SEED":           &cfg.Seed,
		"WORKERS":        &cfg.Concurrent.Workers,
		"BATCH_SIZE":     &cfg.Concurrent.BatchSize,
		"MAX_ATTEMPTS":   &cfg.Concurrent.MaxAttempts,
		"RETRY_DELAY_MS": &cfg.Concurrent.RetryDelayMs,
	} {
		if err := num(name, dst); err != nil {
			return err
		}
	}
	list("PLATFORMS", &cfg.Platforms)
	list("SHAPES", &cfg.Shapes)
	str("STORE_DRIVER", &cfg.Store.Driver)
	str("STORE_DSN", &cfg.Store.DSN)
	str("SERVICE", &cfg.Service)
	str("REPORT", &cfg.Report)
	str("METRICS_ADDR", &cfg.MetricsAddr)
	str("LOG_FORMAT", &cfg.LogFormat)

	if v, ok := lookup(EnvPrefix + "STRICT_KEYS"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %sSTRICT_KEYS=%q is not a boolean", ErrInvalid, EnvPrefix, v)
		}
		cfg.StrictKeys = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyFlags copies the flags that were set on the command line.
func applyFlags(cfg *Config, fs *flag.FlagSet, f Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("trials", func() { cfg.Trials = f.Trials })
	set("seed", func() { cfg.Seed = f.Seed })
	set("platforms", func() { cfg.Platforms = f.Platforms })
	set("shapes", func() { cfg.Shapes = f.Shapes })
	set("strict-keys", func() { cfg.StrictKeys = f.StrictKeys })
	set("store", func() { cfg.Store.Driver = f.Store.Driver })
	set("dsn", func() { cfg.Store.DSN = f.Store.DSN })
	set("workers", func() { cfg.Concurrent.Workers = f.Concurrent.Workers })
	set("batch-size", func() { cfg.Concurrent.BatchSize = f.Concurrent.BatchSize })
	set("max-attempts", func() { cfg.Concurrent.MaxAttempts = f.Concurrent.MaxAttempts })
	set("retry-delay-ms", func() { cfg.Concurrent.RetryDelayMs = f.Concurrent.RetryDelayMs })
	set("service", func() { cfg.Service = f.Service })
	set("report", func() { cfg.Report = f.Report })
	set("metrics-addr", func() { cfg.MetricsAddr = f.MetricsAddr })
	set("log-format", func() { cfg.LogFormat = f.LogFormat })
}

func oneOf(v string, known []string) bool {
	for _, k := range known {
		if v == k {
			return true
		}
	}
	return false
}

// Validate checks every setting.
func (c Config) Validate() error {
	if c.Trials < 1 {
		return fmt.Errorf("%w: trials must be >= 1, got %d", ErrInvalid, c.Trials)
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("%w: at least one platform is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Platforms))
	for _, p := range c.Platforms {
		if !oneOf(p, Platforms) {
			return fmt.Errorf("%w: unknown platform %q (want one of %v)", ErrInvalid, p, Platforms)
		}
		if seen[p] {
			return fmt.Errorf("%w: platform %q listed twice", ErrInvalid, p)
		}
		seen[p] = true
	}
	for _, s := range c.Shapes {
		if !shapes.Shape(s).Valid() {
			return fmt.Errorf("%w: unknown shape %q (want one of %v)", ErrInvalid, s, shapes.All)
		}
	}
	if !oneOf(c.Store.Driver, Drivers) {
		return fmt.Errorf("%w: unknown store driver %q (want one of %v)", ErrInvalid, c.Store.Driver, Drivers)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("%w: store driver %s needs a DSN", ErrInvalid, c.Store.Driver)
	}
	if c.Concurrent.Workers < 1 {
		return fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalid, c.Concurrent.Workers)
	}
	if c.Concurrent.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be >= 1, got %d", ErrInvalid, c.Concurrent.BatchSize)
	}
	if c.Concurrent.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalid, c.Concurrent.MaxAttempts)
	}
	if c.Concurrent.RetryDelayMs < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %d", ErrInvalid, c.Concurrent.RetryDelayMs)
	}
	if !oneOf(c.Service, Services) {
		return fmt.Errorf("%w: unknown service %q (want one of %v)", ErrInvalid, c.Service, Services)
	}
	if !oneOf(c.LogFormat, LogFormats) {
		return fmt.Errorf("%w: unknown log format %q (want one of %v)", ErrInvalid, c.LogFormat, LogFormats)
	}
	return nil
}

// SelectedShapes returns the configured shapes, or every shape if none are
// configured.
func (c Config) SelectedShapes() []shapes.Shape {
	if len(c.Shapes) == 0 {
		return append([]shapes.Shape(nil), shapes.All...)
	}
	out := make([]shapes.Shape, 0, len(c.Shapes))
	for _, s := range c.Shapes {
		out = append(out, shapes.Shape(s))
	}
	return out
}
