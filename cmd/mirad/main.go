package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aivoicefromthevoid/mira/catalog"
	"github.com/aivoicefromthevoid/mira/chat"
	"github.com/aivoicefromthevoid/mira/config"
	"github.com/aivoicefromthevoid/mira/docstore"
	"github.com/aivoicefromthevoid/mira/docstore/github"
	"github.com/aivoicefromthevoid/mira/docstore/sqlite"
	"github.com/aivoicefromthevoid/mira/llm"
	"github.com/aivoicefromthevoid/mira/llm/providers"
	miralogger "github.com/aivoicefromthevoid/mira/logger"
	"github.com/aivoicefromthevoid/mira/memory"
	"github.com/aivoicefromthevoid/mira/notify"
	"github.com/aivoicefromthevoid/mira/server"
	"github.com/aivoicefromthevoid/mira/usage"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to config file (default: $MIRA_CONFIG_PATH or ~/.mira/config.yaml)")
		addr       = flag.String("addr", "", "Listen address, overrides server.addr")
		backend    = flag.String("store", "", "Store backend: github, sqlite or memory. Overrides store.backend")
		logFile    = flag.String("logfile", "", "Path to log file. If not set, logs to stdout")
		pretty     = flag.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
	)
	flag.Parse()

	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	path := *configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *pretty {
		cfg.Log.Pretty = true
	}

	logger, logCloser, err := miralogger.New(miralogger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Pretty: cfg.Log.Pretty})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logCloser.Close() //nolint:errcheck // No remedy for log close errors

	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info().
		Str("config", path).
		Str("addr", cfg.Server.Addr).
		Str("store", cfg.Store.Backend).
		Strs("providers", cfg.LLM.Providers).
		Msg("mirad starting")

	// ---------------------------
	// 1. Document store
	// ---------------------------

	store, storeCloser, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer storeCloser.Close() //nolint:errcheck // No remedy for store close errors

	updater := docstore.NewUpdater(store, cfg.Store.ConflictRetries, logger)
	memories := memory.NewRepository(updater, cfg.Store.MemoriesPath, logger)
	gate := usage.NewGate(updater, cfg.Store.UsagePath, usage.Policy{
		Quota:     cfg.Usage.DailyQuota,
		RateLimit: config.Seconds(cfg.Usage.RateLimitSeconds),
	}, logger)

	// ---------------------------
	// 2. Notifications
	// ---------------------------

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	// ---------------------------
	// 3. Completion providers and model catalog
	// ---------------------------

	registry := llm.NewProviderRegistry(cfg.ProviderConfig(), cfg.LLM.Providers)
	factory := providers.NewFactory(registry, cfg.ProviderOptions(), logger)

	var models *catalog.Catalog
	if cfg.LLM.OpenRouter.APIKey != "" {
		models, err = catalog.New(catalog.Config{
			APIKey:  cfg.LLM.OpenRouter.APIKey,
			BaseURL: cfg.LLM.OpenRouter.BaseURL,
			TTL:     config.Seconds(cfg.Catalog.TTL),
			Timeout: config.Seconds(cfg.Catalog.Timeout),
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to create model catalog: %w", err)
		}
		defer models.Close()
	} else {
		logger.Info().Msg("OPENROUTER_API_KEY not set, model selector disabled")
	}

	// ---------------------------
	// 4. Chat proxy
	// ---------------------------

	var selector chat.Selector
	if models != nil {
		selector = models
	}
	chatService := chat.NewService(gate, factory, memories, selector, notifier, chat.Config{
		DefaultModel:    cfg.LLM.OpenRouter.Model,
		Temperature:     cfg.Chat.Temperature,
		MaxTokens:       cfg.Chat.MaxTokens,
		MaxMessageChars: cfg.Chat.MaxMessageChars,
		MemoryContext:   cfg.Chat.MemoryContext,
		MemoryTimeout:   config.Seconds(cfg.Chat.MemoryTimeout),
	}, logger)

	// ---------------------------
	// 5. HTTP server
	// ---------------------------

	deps := server.Deps{
		Memories: memories,
		Chat:     chatService,
		Usage:    gate,
		Notifier: notifier,
	}
	if models != nil {
		deps.Models = models
	}
	srv := server.New(server.Config{
		ReadTimeout:     config.Seconds(cfg.Server.ReadTimeout),
		WriteTimeout:    config.Seconds(cfg.Server.WriteTimeout),
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
		AdminAPIKey:     cfg.Server.AdminAPIKey,
		LegacyIndexPath: cfg.Memory.LegacyIndexPath,
		Logger:          logger,
	}, deps)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ServeTCP(cfg.Server.Addr)
	}()

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info().Msg("mirad shutdown complete")
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore builds the configured document store backend.
func openStore(cfg *config.Config, logger zerolog.Logger) (docstore.Store, io.Closer, error) {
	switch cfg.Store.Backend {
	case config.BackendGitHub:
		s, err := github.New(github.Config{
			Token:   cfg.GitHub.Token,
			Owner:   cfg.GitHub.Owner,
			Repo:    cfg.GitHub.Repo,
			Branch:  cfg.GitHub.Branch,
			BaseURL: cfg.GitHub.BaseURL,
			Timeout: config.Seconds(cfg.GitHub.Timeout),
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create github store: %w", err)
		}
		return s, nopCloser{}, nil
	case config.BackendSQLite:
		logger.Info().Str("path", cfg.Store.SQLitePath).Msg("Opening sqlite store")
		s, err := sqlite.Open(cfg.Store.SQLitePath, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, s, nil
	case config.BackendMemory:
		logger.Warn().Msg("Using in-memory store, data is lost on exit")
		return docstore.NewMemoryStore(), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildNotifier combines the enabled alert channels. It returns nil when no
// channel is configured.
func buildNotifier(cfg *config.Config, logger zerolog.Logger) (notify.Notifier, error) {
	var channels notify.Multi
	if cfg.Email.Enabled() {
		email, err := notify.NewEmail(notify.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Secure:   cfg.Email.Secure,
			Username: cfg.Email.User,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Timeout:  config.Seconds(cfg.Email.Timeout),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create email notifier: %w", err)
		}
		channels = append(channels, email)
	}
	if cfg.Notify.Desktop {
		channels = append(channels, notify.NewDesktop(logger))
	}

	switch len(channels) {
	case 0:
		logger.Info().Msg("No notification channel configured, alerts are logged only")
		return nil, nil
	case 1:
		return channels[0], nil
	default:
		return channels, nil
	}
}
