// Package config loads the apiai-git project configuration from
// .apiai-git.yaml (or .apiai-git.toml when present) and resolves the
// developer token from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the config file looked up in the working directory.
const DefaultConfigFile = ".apiai-git.yaml"

// TOMLConfigFile is preferred over DefaultConfigFile when both exist.
const TOMLConfigFile = ".apiai-git.toml"

// Defaults.
const (
	DefaultBaseURL     = "https://api.api.ai/v1/"
	DefaultAPIVersion  = "20150910"
	DefaultTokenEnv    = "API_AI_DEV_TOKEN"
	DefaultHistoryDir  = "api_ai_history"
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 1
	DefaultRemote      = "origin"
	DefaultAuthorName  = "apiai-git"
	DefaultAuthorEmail = "apiai-git@users.noreply.github.com"
)

var (
	// ErrMissingCredential means the developer token env var is unset or empty.
	ErrMissingCredential = errors.New("missing API.ai developer token")
	// ErrInvalidConfig wraps config files that parse but fail validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the contents of .apiai-git.yaml.
type Config struct {
	BaseURL     string        `yaml:"base_url" toml:"base_url" validate:"required,url"`
	APIVersion  string        `yaml:"api_version" toml:"api_version" validate:"required,numeric,len=8"`
	TokenEnv    string        `yaml:"token_env" toml:"token_env" validate:"required"`
	HistoryDir  string        `yaml:"history_dir" toml:"history_dir" validate:"required"`
	Timeout     time.Duration `yaml:"timeout" toml:"timeout" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" toml:"concurrency" validate:"min=1,max=32"`
	Remote      string        `yaml:"remote" toml:"remote" validate:"required"`
	AuthorName  string        `yaml:"author_name" toml:"author_name" validate:"required"`
	AuthorEmail string        `yaml:"author_email" toml:"author_email" validate:"required,email"`
}

var validate = validator.New()

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		APIVersion:  DefaultAPIVersion,
		TokenEnv:    DefaultTokenEnv,
		HistoryDir:  DefaultHistoryDir,
		Timeout:     DefaultTimeout,
		Concurrency: DefaultConcurrency,
		Remote:      DefaultRemote,
		AuthorName:  DefaultAuthorName,
		AuthorEmail: DefaultAuthorEmail,
	}
}

// ResolvePath returns the config path to use. If path is the default YAML
// file and a .apiai-git.toml exists alongside it, the TOML file wins.
func ResolvePath(path string) string {
	base := filepath.Base(path)
	if base == DefaultConfigFile || base == ".apiai-git.yml" {
		tomlPath := filepath.Join(filepath.Dir(path), TOMLConfigFile)
		if _, err := os.Stat(tomlPath); err == nil {
			return tomlPath
		}
	}
	return path
}

// Load reads the config at path. A missing file yields the defaults.
// Unset fields fall back to their defaults before validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func (c *Config) fillDefaults() {
	d := Default()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = d.APIVersion
	}
	if c.TokenEnv == "" {
		c.TokenEnv = d.TokenEnv
	}
	if c.HistoryDir == "" {
		c.HistoryDir = d.HistoryDir
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.Concurrency == 0 {
		c.Concurrency = d.Concurrency
	}
	if c.Remote == "" {
		c.Remote = d.Remote
	}
	if c.AuthorName == "" {
		c.AuthorName = d.AuthorName
	}
	if c.AuthorEmail == "" {
		c.AuthorEmail = d.AuthorEmail
	}
}

// LoadCredentials reads the developer token from the env var named by
// TokenEnv. getenv is usually os.Getenv.
func (c *Config) LoadCredentials(getenv func(string) string) (string, error) {
	token := strings.TrimSpace(getenv(c.TokenEnv))
	if token == "" {
		return "", fmt.Errorf("%w: set %s to your API.ai developer access token", ErrMissingCredential, c.TokenEnv)
	}
	return token, nil
}
