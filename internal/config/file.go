package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the optional ~/.recall/config.yaml. Every field has a default, so a
// missing file is not an error.
type File struct {
	Home     string         `yaml:"home"`
	Preamble string         `yaml:"preamble"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Settings Settings       `yaml:"settings"`
	Search   SearchConfig   `yaml:"search"`
	Mail     MailConfig     `yaml:"mail"`
	Calendar CalendarConfig `yaml:"calendar"`
	Files    FilesConfig    `yaml:"files"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Plugins  []PluginConfig `yaml:"plugins"`
}

type ProviderConfig struct {
	Name          string        `yaml:"name"` // openai, ollama, gemini, anthropic, stub
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Host          string        `yaml:"host"`
	EmbedProvider string        `yaml:"embed_provider"` // defaults to Name
	EmbedModel    string        `yaml:"embed_model"`
	EmbedCacheTTL time.Duration `yaml:"embed_cache_ttl"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver"` // sqlite or postgres
	Path        string `yaml:"path"`
	ArtifactDir string `yaml:"artifact_dir"`
	DatabaseURL string `yaml:"database_url"`
}

type SearchConfig struct {
	Backend   string        `yaml:"backend"` // http or browser
	Endpoint  string        `yaml:"endpoint"`
	Settle    time.Duration `yaml:"settle"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	UserAgent string        `yaml:"user_agent"`
}

type MailConfig struct {
	Backend  string `yaml:"backend"` // smtp or gmail
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	From     string `yaml:"from"`
	Confirm  bool   `yaml:"confirm"`
}

type CalendarConfig struct {
	TimeZone        string `yaml:"time_zone"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
	CalendarID      string `yaml:"calendar_id"`
}

type FilesConfig struct {
	AllowedGlobs []string `yaml:"allowed_globs"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// PluginConfig declares an extra command tag served by an external executable.
type PluginConfig struct {
	Tag         string   `yaml:"tag"`
	Path        string   `yaml:"path"`
	Args        []string `yaml:"args"`
	Description string   `yaml:"description"`
	Required    []string `yaml:"required"`
	Ephemeral   bool     `yaml:"ephemeral"`
}

// DefaultHome returns ~/.recall.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".recall"
	}
	return filepath.Join(home, ".recall")
}

// Default returns the configuration used when no file exists.
func Default(home string) *File {
	return &File{
		Home:     home,
		Preamble: filepath.Join(home, "alignment.yaml"),
		Provider: ProviderConfig{
			Name:          "openai",
			EmbedCacheTTL: 10 * time.Minute,
		},
		Store: StoreConfig{
			Driver:      "sqlite",
			Path:        filepath.Join(home, "chat.db"),
			ArtifactDir: filepath.Join(home, "files"),
		},
		Settings: DefaultSettings(),
		Search: SearchConfig{
			Backend:  "http",
			Endpoint: "https://www.google.com/search?q=",
			Settle:   3 * time.Second,
			Timeout:  30 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Mail: MailConfig{
			Backend:  "smtp",
			SMTPPort: 587,
			Confirm:  true,
		},
		Calendar: CalendarConfig{
			TimeZone:        "Local",
			CredentialsFile: filepath.Join(home, "credentials.json"),
			TokenFile:       filepath.Join(home, "token.json"),
			CalendarID:      "primary",
		},
		Files: FilesConfig{
			AllowedGlobs: []string{"*", "**/*.txt", "**/*.md"},
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*File, error) {
	home := filepath.Dir(path)
	cfg := Default(home)

	data, err := os.ReadFile(path) // #nosec G304
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML config: %w", err)
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	for _, p := range cfg.Plugins {
		if p.Tag == "" || p.Path == "" {
			return nil, fmt.Errorf("%w: plugin entries need tag and path", ErrInvalidSetting)
		}
	}
	return cfg, nil
}
