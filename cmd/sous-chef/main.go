package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sous-chef/internal/adapter/gateway"
	"sous-chef/internal/adapter/llm"
	"sous-chef/internal/adapter/store"
	"sous-chef/internal/adapter/tool"
	"sous-chef/internal/domain"
	"sous-chef/internal/infra/config"
	"sous-chef/internal/infra/logger"
	"sous-chef/internal/infra/tokens"
	"sous-chef/internal/infra/tracer"
	"sous-chef/internal/usecase"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "encrypt":
			if err := runEncrypt(); err != nil {
				fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`sous-chef - kitchen assistant engine

USAGE:
    sous-chef [COMMAND] [FLAGS]

COMMANDS:
    encrypt VALUE   Encrypt a secret for use as an "enc:" config value
                    (reads the passphrase from SOUSCHEF_CONFIG_KEY)

    (no command) - Run the engine with existing config

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: SOUSCHEF_* variables override config

Without a configured model provider the engine runs in fallback mode:
deterministic intent matching over the tool registry.`)
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("SOUSCHEF_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func runEncrypt() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: sous-chef encrypt VALUE")
	}
	passphrase := os.Getenv("SOUSCHEF_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("SOUSCHEF_CONFIG_KEY is not set")
	}
	enc, err := config.EncryptValue(os.Args[2], passphrase)
	if err != nil {
		return err
	}
	fmt.Println("enc:" + enc)
	return nil
}

func run() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	registry, err := buildRegistry(db, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}

	provider := buildProvider(cfg.Provider, log)

	counter := tokens.NewCounter(cfg.Provider.Model)
	builder := usecase.NewContextBuilder(
		cfg.Engine.SystemPrompt, cfg.Provider.Model,
		cfg.Engine.HistoryLimit, cfg.Engine.TokenBudget, counter,
	)

	engine := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Provider:     provider,
		Tools:        registry,
		Loader:       store.NewLoader(db),
		Builder:      builder,
		Fallback:     usecase.NewFallback(registry, log),
		Logger:       log,
		MaxRounds:    cfg.Engine.MaxRounds,
		HistoryLimit: cfg.Engine.HistoryLimit,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Digest.Enabled {
		digest := usecase.NewExpiryDigest(db, cfg.Digest.WithinDays, log)
		if err := digest.Start(cfg.Digest.Schedule); err != nil {
			return fmt.Errorf("digest: %w", err)
		}
		defer digest.Stop()
	}

	mode := "fallback"
	if provider != nil {
		mode = provider.Name()
	}
	log.Info("sous-chef starting",
		"mode", mode,
		"model", cfg.Provider.Model,
		"tools", len(registry.Schemas()),
		"store", cfg.Store.Path,
	)

	srv := gateway.NewServer(cfg.Gateway, engine, db, log)
	return srv.Start(ctx)
}

// buildRegistry wires the reference tool set over the store.
func buildRegistry(db *store.Store, log *slog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(log)
	for _, t := range []domain.Tool{
		tool.NewRecipeSearchTool(db, log),
		tool.NewInventoryListTool(db, log),
		tool.NewMealPlanCreateTool(db, db, log),
		tool.NewShoppingListTool(db, db, log),
		tool.NewNutritionSummaryTool(db, log),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildProvider returns nil when no model backend is configured, which puts
// the engine in fallback mode.
func buildProvider(cfg config.ProviderConfig, log *slog.Logger) domain.ModelProvider {
	if !cfg.Configured() {
		return nil
	}
	inner := llm.NewOpenAIProvider(cfg, log)
	return llm.NewCircuitBreakerProvider(inner, cfg.Breaker, log)
}
