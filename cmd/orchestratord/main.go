// Command orchestratord runs the presentation-construction orchestrator: it
// loads the taxonomy registry and non-registry settings, wires the LLM
// provider, generator clients, Stage-6 scheduler, and dialog state machine,
// and serves the WebSocket Connection Handler.
//
// # Configuration
//
// Environment variables:
//
//	ORCHESTRATOR_CONFIG            - path to the YAML settings file (optional)
//	TAXONOMY_REGISTRY_PATH         - path to the taxonomy registry JSON document
//	LISTEN_ADDR                    - HTTP/WebSocket listen address (default ":8080")
//	MODEL_PROVIDER                 - "anthropic" (default) or "bedrock"
//	ANTHROPIC_API_KEY              - required when MODEL_PROVIDER=anthropic
//	BEDROCK_MODEL_ID               - required when MODEL_PROVIDER=bedrock and no strawman model is configured
//	SESSION_STORE                  - "inmem" (default) or "mongo"
//	MONGO_URI, MONGO_DATABASE       - required when SESSION_STORE=mongo
//	RATE_LIMITER                   - "local" (default) or "redis"
//	REDIS_URL                      - required when RATE_LIMITER=redis
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	goredis "github.com/redis/go-redis/v9"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/deckforge/orchestrator/internal/config"
	"github.com/deckforge/orchestrator/internal/deckbuilder"
	"github.com/deckforge/orchestrator/internal/fsm"
	"github.com/deckforge/orchestrator/internal/generator"
	"github.com/deckforge/orchestrator/internal/handler"
	"github.com/deckforge/orchestrator/internal/llm"
	"github.com/deckforge/orchestrator/internal/ratelimit"
	"github.com/deckforge/orchestrator/internal/registry"
	"github.com/deckforge/orchestrator/internal/scheduler"
	"github.com/deckforge/orchestrator/internal/session"
	"github.com/deckforge/orchestrator/internal/session/inmem"
	"github.com/deckforge/orchestrator/internal/session/mongo"
	"github.com/deckforge/orchestrator/internal/telemetry"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	if err := run(ctx); err != nil {
		log.Fatal(ctx, err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(envOr("ORCHESTRATOR_CONFIG", ""))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := loadRegistry(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("load taxonomy registry: %w", err)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	store, err := buildStore(ctx)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	limiter, err := buildLimiter(cfg)
	if err != nil {
		return fmt.Errorf("build rate limiter: %w", err)
	}

	clients := buildGeneratorClients(cfg)
	sched := scheduler.New(reg, clients, limiter, logger, metrics, scheduler.Config{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	})

	var deck deckbuilder.Builder = deckbuilder.Noop{}
	if cfg.Features.PreviewBuilder {
		if svc, ok := cfg.Services["deckbuilder"]; ok {
			deck = deckbuilder.New(svc.BaseURL, svc.Timeout)
		} else {
			logger.Warn(ctx, "preview builder enabled but no deckbuilder service configured")
		}
	}

	fsmCfg := fsm.DefaultConfig()
	fsmCfg.DefaultModel = cfg.Models.Strawman
	fsmCfg.GreetingModel = cfg.Models.Greeting
	fsmCfg.ClarifyingModel = cfg.Models.Clarifying
	fsmCfg.PlanModel = cfg.Models.Plan
	fsmCfg.StrawmanModel = cfg.Models.Strawman
	fsmCfg.RefinementModel = cfg.Models.Refinement
	fsmCfg.IntentModel = cfg.Models.Intent
	fsmCfg.EnablePreview = cfg.Features.PreviewBuilder
	fsmCfg.SchedulerConfig = scheduler.Config{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}

	machine := fsm.New(store, provider, reg, sched, deck, logger, metrics, fsmCfg)
	driver := fsm.NewInProcessDriver(machine)

	h := handler.New(driver, store, handler.NewHub(), logger)

	mux := http.NewServeMux()
	mux.Handle("/sessions", h)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info(ctx, "listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	runErr := <-errc
	logger.Info(ctx, "shutting down", "reason", runErr.Error())

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "graceful shutdown failed", "error", err.Error())
	}
	wg.Wait()
	return nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return nil, errors.New("TAXONOMY_REGISTRY_PATH is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return registry.Load(raw)
}

func buildProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	switch envOr("MODEL_PROVIDER", "anthropic") {
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		runtime := bedrockruntime.NewFromConfig(awsCfg)
		model := cfg.Models.Strawman
		if model == "" {
			model = os.Getenv("BEDROCK_MODEL_ID")
		}
		return llm.NewBedrockProvider(llm.BedrockOptions{
			Runtime:      runtime,
			DefaultModel: model,
		})
	default:
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY is required for MODEL_PROVIDER=anthropic")
		}
		client := sdk.NewClient(option.WithAPIKey(apiKey))
		model := cfg.Models.Strawman
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		return llm.NewAnthropicProvider(&client.Messages, llm.AnthropicOptions{DefaultModel: model})
	}
}

func buildStore(ctx context.Context) (session.Store, error) {
	if envOr("SESSION_STORE", "inmem") != "mongo" {
		return inmem.New(), nil
	}
	uri := os.Getenv("MONGO_URI")
	db := os.Getenv("MONGO_DATABASE")
	if uri == "" || db == "" {
		return nil, errors.New("MONGO_URI and MONGO_DATABASE are required for SESSION_STORE=mongo")
	}
	client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return mongo.New(ctx, mongo.Options{Client: client, Database: db})
}

func buildLimiter(cfg config.Config) (ratelimit.Limiter, error) {
	if envOr("RATE_LIMITER", "local") != "redis" {
		return ratelimit.NewLocal(rate.Every(cfg.RateLimitDelay), 1), nil
	}
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, errors.New("REDIS_URL is required for RATE_LIMITER=redis")
	}
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return ratelimit.NewRedis(goredis.NewClient(opts), cfg.RateLimitDelay, "orchestrator:ratelimit"), nil
}

func buildGeneratorClients(cfg config.Config) map[string]generator.Client {
	clients := make(map[string]generator.Client, len(cfg.Services))
	for name, svc := range cfg.Services {
		if name == "deckbuilder" {
			continue
		}
		clients[name] = generator.New(name, svc.BaseURL, svc.Timeout)
	}
	return clients
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
