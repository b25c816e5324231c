// Package config loads .sqlinter.toml and builds the verdict source it names.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/StepaOpa/SQLinter/internal/model"
	"github.com/StepaOpa/SQLinter/internal/verdict"
)

// FileName is the project configuration file looked up from the working directory upwards.
const FileName = ".sqlinter.toml"

// FallbackCredentialEnv is consulted when the configured credential variable is unset.
const FallbackCredentialEnv = "OPENAI_API_KEY"

const (
	SourceOpenAI  = "openai"
	SourceCommand = "command"
	SourceRules   = "rules"
)

// Duration decodes TOML strings such as "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Source        string   `toml:"source"`
	Timeout       Duration `toml:"timeout"`
	AnalyzeOnSave bool     `toml:"analyze_on_save"`

	OpenAI  OpenAIConfig  `toml:"openai"`
	Command CommandConfig `toml:"command"`
	Scan    ScanConfig    `toml:"scan"`
	Cache   CacheConfig   `toml:"cache"`
	Log     LogConfig     `toml:"log"`
	Rules   RulesConfig   `toml:"rules"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type OpenAIConfig struct {
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	APIKeyEnv   string   `toml:"api_key_env"`
	Temperature *float64 `toml:"temperature"`
}

type CommandConfig struct {
	Argv []string `toml:"argv"`
}

type ScanConfig struct {
	Extensions []string `toml:"extensions"`
	Excludes   []string `toml:"excludes"`
	Workers    int      `toml:"workers"`
}

type CacheConfig struct {
	// Path of the SQLite verdict cache. Empty disables caching.
	Path string `toml:"path"`
}

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type RulesConfig struct {
	Schema                  string `toml:"schema"`
	DeepPaginationThreshold int64  `toml:"deep_pagination_threshold"`
}

func Default() Config {
	cfg := Config{
		Source:        SourceOpenAI,
		Timeout:       Duration{time.Minute},
		AnalyzeOnSave: true,
		OpenAI: OpenAIConfig{
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4.1-mini",
			APIKeyEnv: verdict.CredentialEnv,
		},
		Scan: ScanConfig{
			Extensions: []string{"py", "pyi", "go"},
			Excludes:   []string{".git", "vendor", "node_modules", "__pycache__"},
			Workers:    runtime.GOMAXPROCS(0),
		},
		Log:   LogConfig{Level: "info"},
		Rules: RulesConfig{DeepPaginationThreshold: 5000},
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.Cache.Path = filepath.Join(dir, "sqlinter", "verdicts.db")
	}
	return cfg
}

// Find looks for FileName in startDir and its parents.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load reads the configuration at path. An empty path searches upwards from
// the working directory and falls back to Default when nothing is found.
func Load(path string) (Config, error) {
	if path == "" {
		found, ok, err := Find(".")
		if err != nil {
			return Config{}, err
		}
		if !ok {
			return Default(), nil
		}
		path = found
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, &model.ConfigurationError{Setting: path, Err: fmt.Errorf("parse TOML: %w", err)}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, &model.ConfigurationError{Setting: path, Err: fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))}
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Source {
	case SourceOpenAI, SourceRules:
	case SourceCommand:
		if len(c.Command.Argv) == 0 {
			return &model.ConfigurationError{Setting: "command.argv", Err: errors.New("required when source is \"command\"")}
		}
	default:
		return &model.ConfigurationError{Setting: "source", Err: fmt.Errorf("unknown source %q (want openai, command or rules)", c.Source)}
	}
	if c.Timeout.Duration <= 0 {
		return &model.ConfigurationError{Setting: "timeout", Err: errors.New("must be positive")}
	}
	if c.Scan.Workers < 0 {
		return &model.ConfigurationError{Setting: "scan.workers", Err: errors.New("must not be negative")}
	}
	return nil
}

// CredentialEnv is the environment variable holding the credential.
func (c Config) CredentialEnv() string {
	if c.OpenAI.APIKeyEnv != "" {
		return c.OpenAI.APIKeyEnv
	}
	return verdict.CredentialEnv
}

// Credential returns the configured credential, if any.
func (c Config) Credential() (string, bool) {
	if v := strings.TrimSpace(os.Getenv(c.CredentialEnv())); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(os.Getenv(FallbackCredentialEnv)); v != "" {
		return v, true
	}
	return "", false
}

// HasCredential is suitable for engine.Options.HasCredential.
func (c Config) HasCredential() bool {
	_, ok := c.Credential()
	return ok
}
