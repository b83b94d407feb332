package main

import (
	"context"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/devricklin/mention-dispatch/internal/api"
	"github.com/devricklin/mention-dispatch/internal/biz/domain"
	"github.com/devricklin/mention-dispatch/internal/biz/repo"
	"github.com/devricklin/mention-dispatch/internal/biz/usecase"
	"github.com/devricklin/mention-dispatch/internal/conf"
	"github.com/devricklin/mention-dispatch/internal/data"
	"github.com/devricklin/mention-dispatch/internal/logging"
	"github.com/devricklin/mention-dispatch/internal/metrics"
	"github.com/devricklin/mention-dispatch/internal/service"
	"github.com/devricklin/mention-dispatch/internal/webhook"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	logger := logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	personas, err := conf.LoadPersonasConfig(cfg.Bot.PersonasPath)
	if err != nil {
		fatal(logger, "load personas", err)
	}
	persona, ok := personas.Persona(cfg.Bot.Persona)
	if !ok {
		logger.Error("unknown persona", "persona", cfg.Bot.Persona, "available", personas.Names())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize repository layer
	repos, err := data.NewRepositories(ctx, cfg, logging.Component(logger, "data"))
	if err != nil {
		fatal(logger, "create repositories", err)
	}
	defer repos.Close()

	m := metrics.New()

	// Initialize usecase layer
	generator := newGenerator(cfg, persona, repos.Completion, m, logging.Component(logger, "reply"))
	dispatchUC := usecase.NewDispatchUsecase(
		repos.Room,
		generator,
		domain.NewSeenSet(cfg.Dispatch.SeenCapacity),
		cfg.ToDispatchConfig(),
		logging.Component(logger, "dispatch"),
	)

	// Initialize service layer
	dispatcher := service.NewDispatcher(dispatchUC, service.DispatcherConfig{
		Platform:        cfg.Platform,
		Room:            repos.RoomID,
		Persona:         persona.Name,
		Generative:      repos.Completion != nil,
		PollInterval:    cfg.Dispatch.PollInterval,
		FreshnessWindow: cfg.Dispatch.FreshnessWindow,
		TickTimeout:     cfg.Dispatch.TickTimeout,
		Retention:       cfg.Journal.Retention,
	}, m, logging.Component(logger, "dispatcher"))

	if repos.Journal != nil {
		dispatchUC.SetJournal(repos.Journal)
		dispatcher.SetJournal(repos.Journal)
		logger.Info("dispatch journal enabled", "path", cfg.Journal.DBPath, "persist_seen", cfg.Journal.PersistSeen)
	}
	if cfg.Webhook.URL != "" {
		dispatcher.SetForwarder(webhook.NewForwarder(cfg.Webhook.URL, logging.Component(logger, "webhook")))
		logger.Info("reply webhook enabled")
	}

	if err := dispatcher.Start(ctx); err != nil {
		fatal(logger, "start dispatcher", err)
	}
	self := dispatchUC.Self()
	logger.Info("bot identity", "self", self.FormatDisplay(), "handles", cfg.Bot.TriggerHandles())

	// Initialize HTTP API server for dispatch-mcp
	if cfg.API.Port > 0 {
		apiServer := api.NewServer(repos.Room, repos.RoomID, dispatcher, cfg.API.Port, logging.Component(logger, "api"))
		apiServer.SetMetricsHandler(m.Handler())
		if repos.Journal != nil {
			apiServer.SetJournal(repos.Journal)
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			apiServer.Stop(shutdownCtx)
		}()
		logger.Info("api server started", "port", cfg.API.Port)
	}

	logger.Info("starting mention dispatch",
		"platform", cfg.Platform,
		"room", repos.RoomID,
		"persona", persona.Name,
		"generative", repos.Completion != nil,
	)
	dispatcher.Run(ctx, service.TickerScheduler{Immediate: true})
	logger.Info("shutting down")
}

// newGenerator builds the static generator, wrapped by the generative one
// when a completion service is configured
func newGenerator(
	cfg *conf.Config,
	persona domain.Persona,
	completion repo.CompletionRepo,
	m *metrics.Metrics,
	logger *slog.Logger,
) usecase.ReplyGenerator {
	seed := cfg.Bot.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	static := usecase.NewStaticGenerator(persona, rand.New(rand.NewSource(seed)))
	if completion == nil {
		return static
	}

	gen := usecase.NewGenerativeGenerator(completion, persona, static, logger)
	gen.SetMaxReplyChars(cfg.OpenAI.MaxReplyChars)
	gen.SetTimeout(cfg.OpenAI.Timeout)
	gen.OnFallback(func(error) {
		m.Fallbacks.Inc()
	})
	return gen
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
