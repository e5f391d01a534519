package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadWithEnv("", envOf(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if cfg.Usage.DailyQuota != 100 || cfg.Usage.RateLimitSeconds != 10 {
		t.Fatalf("unexpected usage defaults %+v", cfg.Usage)
	}
	if cfg.Store.Backend != BackendGitHub || cfg.Store.MemoriesPath != "memory-storage/memories.json" {
		t.Fatalf("unexpected store defaults %+v", cfg.Store)
	}
	if cfg.Chat.Temperature != 0.8 || cfg.Chat.MaxTokens != 500 || cfg.Server.MaxBodyBytes != 1<<20 {
		t.Fatalf("unexpected chat/server defaults %+v %+v", cfg.Chat, cfg.Server)
	}
}

func TestFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  addr: ":9090"
store:
  backend: sqlite
  sqlite_path: /var/lib/mira/mira.db
usage:
  daily_quota: 20
llm:
  providers: [openrouter, ollama]
  ollama:
    model: mistral
email:
  host: smtp.example.com
  port: 2525
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithEnv(path, envOf(map[string]string{
		"OPENROUTER_API_KEY": "\uFEFFor-key  \n",
		"GITHUB_TOKEN":       " ghp_token ",
		"EMAIL_USER":         "mira@example.com",
		"EMAIL_SMTP_PORT":    "465",
		"EMAIL_SMTP_SECURE":  "true",
		"LOG_LEVEL":          "debug",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}

	if cfg.Server.Addr != ":9090" || cfg.Store.Backend != BackendSQLite || cfg.Usage.DailyQuota != 20 {
		t.Fatalf("file values not applied: %+v %+v %+v", cfg.Server, cfg.Store, cfg.Usage)
	}
	if cfg.Usage.RateLimitSeconds != 10 {
		t.Fatalf("defaults should survive the merge, got %d", cfg.Usage.RateLimitSeconds)
	}
	if cfg.LLM.OpenRouter.APIKey != "or-key" || cfg.GitHub.Token != "ghp_token" {
		t.Fatalf("secrets not cleaned: %q %q", cfg.LLM.OpenRouter.APIKey, cfg.GitHub.Token)
	}
	if cfg.Email.Port != 465 || !cfg.Email.Secure || cfg.Email.Host != "smtp.example.com" {
		t.Fatalf("unexpected email config %+v", cfg.Email)
	}
	if cfg.Email.From != "mira@example.com" {
		t.Fatalf("sender should default to EMAIL_USER, got %q", cfg.Email.From)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("LOG_LEVEL not applied: %q", cfg.Log.Level)
	}
	if len(cfg.LLM.Providers) != 2 || cfg.LLM.Ollama.Model != "mistral" {
		t.Fatalf("unexpected llm config %+v", cfg.LLM)
	}
}

func TestInvalidPort(t *testing.T) {
	if _, err := LoadWithEnv("", envOf(map[string]string{"EMAIL_SMTP_PORT": "smtp"})); err == nil {
		t.Fatal("expected error for a non-numeric port")
	}
}

func TestValidateNamesMissingSettings(t *testing.T) {
	cfg := Defaults()
	cfg.Email.Host = "smtp.example.com"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, name := range []string{"GITHUB_TOKEN", "OPENROUTER_API_KEY", "EMERGENCY_EMAIL", "EMAIL_USER", "EMAIL_PASSWORD"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error should name %s: %v", name, err)
		}
	}
	if strings.Contains(err.Error(), "GITHUB_OWNER") {
		t.Errorf("owner has a default and should not be reported: %v", err)
	}
}

func TestValidateOK(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Backend = BackendMemory
	cfg.LLM.OpenRouter.APIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg.Store.Backend = "s3"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Usage.DailyQuota = 7
	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadWithEnv(path, envOf(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if loaded.Usage.DailyQuota != 7 {
		t.Fatalf("expected quota 7, got %d", loaded.Usage.DailyQuota)
	}
}

func TestProviderConfig(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.OpenRouter.APIKey = "k"
	pc := cfg.ProviderConfig()
	if pc.OpenRouterAPIKey != "k" || pc.OpenRouterModel != "mistralai/mistral-7b-instruct:free" {
		t.Fatalf("unexpected provider config %+v", pc)
	}
	if opts := cfg.ProviderOptions(); opts.Title != "Mira - The Living Canvas" || opts.Timeout.Seconds() != 60 {
		t.Fatalf("unexpected provider options %+v", opts)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Defaults()
	cfg.GitHub.Token = "ghp_secret"
	cfg.Email.Password = "hunter2"

	red := cfg.Redacted()
	if red.GitHub.Token != "********" || red.Email.Password != "********" {
		t.Fatalf("secrets not masked: %+v", red)
	}
	if red.Server.AdminAPIKey != "" {
		t.Fatal("empty secrets should stay empty")
	}
	if cfg.GitHub.Token != "ghp_secret" {
		t.Fatal("Redacted must not modify the original")
	}
}
