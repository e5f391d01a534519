package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aivoicefromthevoid/mira/chat"
	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/server"
	"github.com/aivoicefromthevoid/mira/usage"
	"github.com/rs/zerolog"
)

type pausedChat struct{}

func (pausedChat) Reply(context.Context, chat.Request) (chat.Outcome, error) {
	return chat.Outcome{Denial: &usage.Decision{
		Reason:  usage.ReasonQuotaExceeded,
		Message: "Daily quota exceeded. Please try again tomorrow.",
	}}, nil
}

type okChat struct{}

func (okChat) Reply(_ context.Context, req chat.Request) (chat.Outcome, error) {
	return chat.Outcome{Response: "echo: " + req.Message, Model: "test/model", Timestamp: time.Now().UTC()}, nil
}

type staticUsage struct{}

func (staticUsage) Stats(context.Context) (usage.Snapshot, error) {
	return usage.Snapshot{Date: "2025-05-10", Count: 4, Quota: 100, Remaining: 96, RateLimitSeconds: 10}, nil
}

func newDaemon(t *testing.T, c server.Chat) string {
	t.Helper()
	dir := t.TempDir()
	legacy := filepath.Join(dir, "memory_index.json")
	if err := os.WriteFile(legacy, []byte(`{"version":"2.1","entries":[{"id":"a-1","timestamp":"2025-01-01T00:00:00Z","type":"journal","brief_summary":"first"}]}`), 0o644); err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	repo := memory.NewRepository(docstore.NewUpdater(docstore.NewMemoryStore(), 0, zerolog.Nop()), "", zerolog.Nop())
	srv := server.New(server.Config{AdminAPIKey: "admin", LegacyIndexPath: legacy, Logger: zerolog.Nop()}, server.Deps{
		Memories: repo,
		Chat:     c,
		Usage:    staticUsage{},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestChatCommand(t *testing.T) {
	addr := newDaemon(t, okChat{})
	out, err := run(t, "--addr", addr, "chat", "hello", "there")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !strings.Contains(out, "echo: hello there") || !strings.Contains(out, "test/model") {
		t.Fatalf("unexpected output %q", out)
	}

	addr = newDaemon(t, pausedChat{})
	out, err = run(t, "--addr", addr, "chat", "hi")
	if err != nil {
		t.Fatalf("paused chat: %v", err)
	}
	if !strings.Contains(out, "paused (quota_exceeded)") {
		t.Fatalf("unexpected paused output %q", out)
	}
}

func TestUsageCommand(t *testing.T) {
	addr := newDaemon(t, okChat{})
	out, err := run(t, "--addr", addr, "usage")
	if err != nil || !strings.Contains(out, "4/100 calls used, 96 remaining") {
		t.Fatalf("usage: %q %v", out, err)
	}
	out, err = run(t, "--addr", addr, "-f", "json", "usage")
	if err != nil || !strings.Contains(out, `"remaining": 96`) {
		t.Fatalf("usage json: %q %v", out, err)
	}
}

func TestMemoriesCommands(t *testing.T) {
	addr := newDaemon(t, okChat{})

	out, err := run(t, "--addr", addr, "memories", "add", "--type", "insight", "-c", "Stars are patient", "-t", "sky, night")
	if err != nil || !strings.HasPrefix(out, "Stored ") {
		t.Fatalf("add: %q %v", out, err)
	}
	id := strings.Fields(out)[1]

	out, err = run(t, "--addr", addr, "memories", "list", "--tag", "sky")
	if err != nil || !strings.Contains(out, id) || !strings.Contains(out, "1 of 1 shown") {
		t.Fatalf("list: %q %v", out, err)
	}

	out, err = run(t, "--addr", addr, "memories", "get", id)
	if err != nil || !strings.Contains(out, `"content": "Stars are patient"`) {
		t.Fatalf("get: %q %v", out, err)
	}

	out, err = run(t, "--addr", addr, "memories", "rm", "--hard", id)
	if err != nil || !strings.Contains(out, "Deleted "+id) {
		t.Fatalf("rm: %q %v", out, err)
	}

	if _, err = run(t, "--addr", addr, "memories", "get", id); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404 after delete, got %v", err)
	}

	out, err = run(t, "--addr", addr, "memories", "history")
	if err != nil || !strings.Contains(out, "1  Add memory: Stars are patient") || !strings.Contains(out, "2  Delete memory: "+id) {
		t.Fatalf("history: %q %v", out, err)
	}
	if _, err = run(t, "--addr", addr, "memories", "add"); err == nil {
		t.Fatal("add without --content should fail")
	}
}

func TestMigrateCommand(t *testing.T) {
	addr := newDaemon(t, okChat{})
	t.Setenv("ADMIN_API_KEY", "")

	if _, err := run(t, "--addr", addr, "migrate"); err == nil {
		t.Fatal("migrate without admin key should fail")
	}
	if _, err := run(t, "--addr", addr, "--admin-key", "wrong", "migrate"); err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401, got %v", err)
	}
	out, err := run(t, "--addr", addr, "--admin-key", "admin", "migrate")
	if err != nil || !strings.Contains(out, "Migrated 1 of 1 entries") {
		t.Fatalf("migrate: %q %v", out, err)
	}
}

func TestModelsCommandShowsHint(t *testing.T) {
	addr := newDaemon(t, okChat{})
	_, err := run(t, "--addr", addr, "models", "list")
	if err == nil || !strings.Contains(err.Error(), "hint: Set OPENROUTER_API_KEY") {
		t.Fatalf("expected hint in error, got %v", err)
	}
}

func TestConfigCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	out, err := run(t, "config", "init", "--config", path)
	if err != nil || !strings.Contains(out, "Wrote "+path) {
		t.Fatalf("init: %q %v", out, err)
	}
	if _, err := run(t, "config", "init", "--config", path); err == nil {
		t.Fatal("init should refuse to overwrite")
	}

	_, err = run(t, "config", "validate", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "GITHUB_TOKEN") {
		t.Fatalf("validate should name GITHUB_TOKEN, got %v", err)
	}

	t.Setenv("GITHUB_TOKEN", "ghp_test")
	out, err = run(t, "config", "show", "--config", path)
	if err != nil || !strings.Contains(out, "********") || strings.Contains(out, "ghp_test") {
		t.Fatalf("show should mask the token: %q %v", out, err)
	}
}
