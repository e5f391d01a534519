// Package config loads Mira's settings: built-in defaults, then the YAML file,
// then the environment variables the site has always been deployed with.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendGitHub = "github"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr         string `yaml:"addr,omitempty"`           // Listen address (default: ":8080")
	ReadTimeout  int    `yaml:"read_timeout,omitempty"`   // Seconds
	WriteTimeout int    `yaml:"write_timeout,omitempty"`  // Seconds
	MaxBodyBytes int64  `yaml:"max_body_bytes,omitempty"` // Request body cap (default: 1 MiB)
	AdminAPIKey  string `yaml:"admin_api_key,omitempty"`  // Bearer key for admin endpoints
}

// StoreConfig selects and tunes the document store.
type StoreConfig struct {
	Backend         string `yaml:"backend,omitempty"`          // github, sqlite or memory
	SQLitePath      string `yaml:"sqlite_path,omitempty"`      // Database file for the sqlite backend
	ConflictRetries uint64 `yaml:"conflict_retries,omitempty"` // Re-read attempts after a stale write (default: 0)
	MemoriesPath    string `yaml:"memories_path,omitempty"`
	UsagePath       string `yaml:"usage_path,omitempty"`
}

// GitHubConfig configures the GitHub contents backend.
type GitHubConfig struct {
	Token   string `yaml:"token,omitempty"`
	Owner   string `yaml:"owner,omitempty"`
	Repo    string `yaml:"repo,omitempty"`
	Branch  string `yaml:"branch,omitempty"`   // Empty uses the repository default branch
	BaseURL string `yaml:"base_url,omitempty"` // GitHub Enterprise API URL
	Timeout int    `yaml:"timeout,omitempty"`  // Seconds
}

// UsageConfig holds the quota policy.
type UsageConfig struct {
	DailyQuota       int `yaml:"daily_quota,omitempty"`
	RateLimitSeconds int `yaml:"rate_limit_seconds,omitempty"`
}

// OpenRouterConfig configures the OpenRouter provider.
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"` // Default model name
	Referer string `yaml:"referer,omitempty"`
	Title   string `yaml:"title,omitempty"`
}

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model,omitempty"`
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host  string `yaml:"host,omitempty"`  // Ollama host (default: "http://localhost:11434")
	Model string `yaml:"model,omitempty"` // Default model name
}

// LLMConfig lists the completion providers in preference order.
type LLMConfig struct {
	Providers  []string         `yaml:"providers,omitempty"`
	Timeout    int              `yaml:"timeout,omitempty"`     // Seconds per completion call
	MaxRetries uint64           `yaml:"max_retries,omitempty"` // Retries of transient provider failures
	OpenRouter OpenRouterConfig `yaml:"openrouter,omitempty"`
	Anthropic  AnthropicConfig  `yaml:"anthropic,omitempty"`
	Ollama     OllamaConfig     `yaml:"ollama,omitempty"`
}

// ChatConfig tunes the completion proxy.
type ChatConfig struct {
	Temperature     float64 `yaml:"temperature,omitempty"`
	MaxTokens       int64   `yaml:"max_tokens,omitempty"`
	MaxMessageChars int     `yaml:"max_message_chars,omitempty"`
	MemoryContext   int     `yaml:"memory_context,omitempty"` // Relevant memories added to the prompt (0 disables)
	MemoryTimeout   int     `yaml:"memory_timeout,omitempty"` // Seconds
}

// CatalogConfig tunes the model selector.
type CatalogConfig struct {
	TTL     int `yaml:"ttl,omitempty"`     // Seconds
	Timeout int `yaml:"timeout,omitempty"` // Seconds
}

// EmailConfig holds the SMTP settings for emergency alerts.
type EmailConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Secure   bool   `yaml:"secure,omitempty"` // Implicit TLS
	User     string `yaml:"user,omitempty"`
	Password string `yaml:"password,omitempty"`
	From     string `yaml:"from,omitempty"`
	To       string `yaml:"to,omitempty"`
	Timeout  int    `yaml:"timeout,omitempty"` // Seconds
}

// Enabled reports whether any email setting was provided.
func (e EmailConfig) Enabled() bool {
	return e.Host != "" || e.User != "" || e.To != ""
}

// NotifyConfig selects alert channels.
type NotifyConfig struct {
	Desktop bool `yaml:"desktop,omitempty"` // Also raise desktop notifications (local development)
}

// MemoryConfig holds memory repository settings.
type MemoryConfig struct {
	LegacyIndexPath string `yaml:"legacy_index_path,omitempty"` // memory_index.json used by migrations and /api/memories
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	File   string `yaml:"file,omitempty"`
	Pretty bool   `yaml:"pretty,omitempty"`
}

// Config is the complete configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	GitHub  GitHubConfig  `yaml:"github,omitempty"`
	Usage   UsageConfig   `yaml:"usage,omitempty"`
	LLM     LLMConfig     `yaml:"llm,omitempty"`
	Chat    ChatConfig    `yaml:"chat,omitempty"`
	Catalog CatalogConfig `yaml:"catalog,omitempty"`
	Email   EmailConfig   `yaml:"email,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	Memory  MemoryConfig  `yaml:"memory,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15,
			WriteTimeout: 90,
			MaxBodyBytes: 1 << 20,
		},
		Store: StoreConfig{
			Backend:      BackendGitHub,
			SQLitePath:   "mira.db",
			MemoriesPath: "memory-storage/memories.json",
			UsagePath:    "memory-storage/usage.json",
		},
		GitHub: GitHubConfig{
			Owner:   "aivoicefromthevoid",
			Repo:    "AI-Social-Media",
			Timeout: 15,
		},
		Usage: UsageConfig{
			DailyQuota:       100,
			RateLimitSeconds: 10,
		},
		LLM: LLMConfig{
			Providers: []string{"openrouter"},
			Timeout:   60,
			OpenRouter: OpenRouterConfig{
				BaseURL: "https://openrouter.ai/api/v1",
				Model:   "mistralai/mistral-7b-instruct:free",
				Referer: "https://website-nine-delta-94.vercel.app",
				Title:   "Mira - The Living Canvas",
			},
			Anthropic: AnthropicConfig{Model: "claude-haiku-4-5"},
			Ollama:    OllamaConfig{Host: "http://localhost:11434"},
		},
		Chat: ChatConfig{
			Temperature:     0.8,
			MaxTokens:       500,
			MaxMessageChars: 4000,
			MemoryContext:   0,
			MemoryTimeout:   3,
		},
		Catalog: CatalogConfig{TTL: 3600, Timeout: 15},
		Email:   EmailConfig{Port: 587, Timeout: 20},
		Memory:  MemoryConfig{LegacyIndexPath: "memory_index.json"},
		Log:     LogConfig{Level: "info"},
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via MIRA_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("MIRA_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.mira/config.yaml"
	}
	return filepath.Join(homeDir, ".mira", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// Load reads configuration from path (missing file is fine) and the process
// environment.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		expandedPath := expandPath(path)
		if _, err := os.Stat(expandedPath); err == nil {
			data, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
			}

			var fileCfg Config
			if err := yaml.Unmarshal(data, &fileCfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %q: %w", expandedPath, err)
			}
			if err := mergo.Merge(&cfg, fileCfg, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("failed to merge config file: %w", err)
			}
		}
	}

	envCfg, err := fromEnv(lookup)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(&cfg, envCfg, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge environment: %w", err)
	}

	cfg.LLM.OpenRouter.APIKey = cleanSecret(cfg.LLM.OpenRouter.APIKey)
	cfg.LLM.Anthropic.APIKey = cleanSecret(cfg.LLM.Anthropic.APIKey)
	cfg.GitHub.Token = cleanSecret(cfg.GitHub.Token)
	cfg.Email.Password = cleanSecret(cfg.Email.Password)
	cfg.Server.AdminAPIKey = cleanSecret(cfg.Server.AdminAPIKey)
	if cfg.Email.From == "" {
		cfg.Email.From = cfg.Email.User
	}

	return &cfg, nil
}

// fromEnv builds the environment overlay. Unset variables leave zero values,
// which mergo skips.
func fromEnv(lookup func(string) (string, bool)) (Config, error) {
	get := func(name string) string {
		v, _ := lookup(name)
		return strings.TrimSpace(v)
	}

	var cfg Config
	cfg.Server.Addr = get("MIRA_ADDR")
	cfg.Server.AdminAPIKey = get("ADMIN_API_KEY")
	cfg.Store.Backend = get("MIRA_STORE_BACKEND")
	cfg.Store.SQLitePath = get("MIRA_SQLITE_PATH")

	cfg.GitHub.Token = get("GITHUB_TOKEN")
	cfg.GitHub.Owner = get("GITHUB_OWNER")
	cfg.GitHub.Repo = get("GITHUB_REPO")
	cfg.GitHub.Branch = get("GITHUB_BRANCH")

	cfg.LLM.OpenRouter.APIKey = get("OPENROUTER_API_KEY")
	cfg.LLM.Anthropic.APIKey = get("ANTHROPIC_API_KEY")
	cfg.LLM.Ollama.Host = get("OLLAMA_HOST")
	cfg.LLM.Ollama.Model = get("OLLAMA_MODEL")

	cfg.Email.To = get("EMERGENCY_EMAIL")
	cfg.Email.User = get("EMAIL_USER")
	cfg.Email.Password = get("EMAIL_PASSWORD")
	cfg.Email.Host = get("EMAIL_SMTP_HOST")
	cfg.Email.From = get("GMAIL_SENDER_EMAIL")
	if port := get("EMAIL_SMTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("EMAIL_SMTP_PORT: %w", err)
		}
		cfg.Email.Port = p
	}
	// Only "true" enables implicit TLS. mergo cannot override true with
	// false, so "false" is left to the file and defaults.
	cfg.Email.Secure = get("EMAIL_SMTP_SECURE") == "true"

	cfg.Log.Level = get("LOG_LEVEL")
	return cfg, nil
}

// cleanSecret strips a UTF-8 byte order mark and surrounding whitespace,
// both of which show up when secrets are pasted into hosting dashboards.
func cleanSecret(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\uFEFF"))
}

// Validate reports every setting required by the selected features that is
// missing, naming the environment variable that provides it.
func (c *Config) Validate() error {
	var missing []string

	switch c.Store.Backend {
	case BackendGitHub:
		if c.GitHub.Token == "" {
			missing = append(missing, "GITHUB_TOKEN (github.token)")
		}
		if c.GitHub.Owner == "" {
			missing = append(missing, "GITHUB_OWNER (github.owner)")
		}
		if c.GitHub.Repo == "" {
			missing = append(missing, "GITHUB_REPO (github.repo)")
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			missing = append(missing, "MIRA_SQLITE_PATH (store.sqlite_path)")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q (want github, sqlite or memory)", c.Store.Backend)
	}

	if len(c.LLM.Providers) == 0 {
		missing = append(missing, "llm.providers")
	}
	for _, p := range c.LLM.Providers {
		switch p {
		case "openrouter":
			if c.LLM.OpenRouter.APIKey == "" {
				missing = append(missing, "OPENROUTER_API_KEY (llm.openrouter.api_key)")
			}
		case "anthropic":
			if c.LLM.Anthropic.APIKey == "" {
				missing = append(missing, "ANTHROPIC_API_KEY (llm.anthropic.api_key)")
			}
		case "ollama":
			if c.LLM.Ollama.Model == "" {
				missing = append(missing, "OLLAMA_MODEL (llm.ollama.model)")
			}
		default:
			return fmt.Errorf("unknown llm provider %q (want openrouter, anthropic or ollama)", p)
		}
	}

	if c.Email.Enabled() {
		if c.Email.To == "" {
			missing = append(missing, "EMERGENCY_EMAIL (email.to)")
		}
		if c.Email.User == "" {
			missing = append(missing, "EMAIL_USER (email.user)")
		}
		if c.Email.Password == "" {
			missing = append(missing, "EMAIL_PASSWORD (email.password)")
		}
		if c.Email.Host == "" {
			missing = append(missing, "EMAIL_SMTP_HOST (email.host)")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Redacted returns a copy with every secret masked, for display.
func (c Config) Redacted() Config {
	mask := func(s *string) {
		if *s != "" {
			*s = "********"
		}
	}
	mask(&c.Server.AdminAPIKey)
	mask(&c.GitHub.Token)
	mask(&c.LLM.OpenRouter.APIKey)
	mask(&c.LLM.Anthropic.APIKey)
	mask(&c.Email.Password)
	return c
}

// Seconds converts a seconds setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Save writes cfg as YAML to path.
func Save(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
