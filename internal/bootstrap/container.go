package bootstrap

import (
	"context"
	"fmt"
	"time"

	"coi-notes-be/internal/config"
	"coi-notes-be/internal/controller"
	"coi-notes-be/internal/pkg/logger"
	"coi-notes-be/internal/repository/contract"
	"coi-notes-be/internal/repository/memory"
	"coi-notes-be/internal/repository/redisstore"
	"coi-notes-be/internal/repository/unitofwork"
	"coi-notes-be/internal/service"
	"coi-notes-be/pkg/events"
	"coi-notes-be/pkg/llm"
	"coi-notes-be/pkg/llm/factory"
	pktNats "coi-notes-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"gorm.io/gorm"
)

const (
	eventsTopic    = "chat-events"
	preferencesTTL = 90 * 24 * time.Hour
)

type Container struct {
	ChatController controller.IChatController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger

	closers []func()
}

// Close releases broker and cache connections.
func (c *Container) Close() {
	for _, fn := range c.closers {
		fn()
	}
	_ = c.Logger.Sync()
}

func NewContainer(ctx context.Context, db *gorm.DB, cfg *config.Config) (*Container, error) {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	llmLogger := logger.NewIsolatedLogger(cfg.App.LLMLogFilePath)
	c := &Container{Logger: sysLogger}

	// 2. Event Bus: in-process always, NATS when reachable
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	c.closers = append(c.closers, func() { _ = pubSub.Close() })

	var publisher events.Publisher = events.NewInProcessPublisher(pubSub, eventsTopic)
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL, sysLogger)
	if err != nil {
		sysLogger.Warn("Events", "NATS unavailable, events stay in process", map[string]interface{}{"error": err.Error()})
	} else {
		publisher = events.Fanout{publisher, natsPub}
		c.closers = append(c.closers, natsPub.Close)
	}

	// 3. Preferences: Redis, falling back to process memory
	var prefsRepo contract.ChatPreferencesRepository
	rdb, err := redisstore.NewClient(ctx, cfg.App.RedisURL)
	if err != nil {
		sysLogger.Warn("Preferences", "Redis unavailable, preferences kept in memory", map[string]interface{}{"error": err.Error()})
		prefsRepo = memory.NewChatPreferencesRepository(preferencesTTL)
	} else {
		prefsRepo = redisstore.NewChatPreferencesRepository(rdb, preferencesTTL)
		c.closers = append(c.closers, func() { _ = rdb.Close() })
	}

	// 4. LLM
	provider, err := factory.NewLLMProvider(ctx, factory.Options{
		Provider:      cfg.Ai.Provider,
		APIKey:        cfg.Keys.GoogleGemini,
		DefaultModel:  cfg.Ai.FastModel,
		OllamaBaseURL: cfg.Ai.OllamaBaseURL,
	}, llmLogger)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM provider: %w", err)
	}
	sysLogger.Info("Bootstrap", "LLM provider ready", map[string]interface{}{
		"provider":   cfg.Ai.Provider,
		"fast_model": cfg.Ai.FastModel,
		"pro_model":  cfg.Ai.ProModel,
	})
	invoker := llm.NewInvoker(provider, llm.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
	}, sysLogger)

	// 5. Services
	chatService := service.NewChatStreamService(uowFactory, invoker, prefsRepo, publisher, sysLogger, service.ChatStreamConfig{
		FastModel:       cfg.Ai.FastModel,
		ProModel:        cfg.Ai.ProModel,
		Temperature:     cfg.Ai.Temperature,
		MaxOutputTokens: cfg.Ai.MaxOutputTokens,
		HistoryLimit:    cfg.Stream.HistoryLimit,
		Timeout:         cfg.Stream.Timeout,
	})
	c.ConsumerService = service.NewConsumerService(pubSub, eventsTopic, sysLogger)

	// 6. Controllers
	c.ChatController = controller.NewChatController(chatService, cfg.Keys.JWTSecret, sysLogger)
	return c, nil
}
