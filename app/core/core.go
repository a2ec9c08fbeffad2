package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quka-ai/supportchat/app/core/srv"
	"github.com/quka-ai/supportchat/app/store"
	"github.com/quka-ai/supportchat/app/store/sqlstore"
	"github.com/quka-ai/supportchat/pkg/ai/tools"
	"github.com/quka-ai/supportchat/pkg/channels"
	"github.com/quka-ai/supportchat/pkg/eventbus"
	"github.com/quka-ai/supportchat/pkg/knowledge"
	"github.com/quka-ai/supportchat/pkg/ratelimit"
)

// StoreProvider is the persistence surface the app depends on.
// *sqlstore.Provider satisfies it.
type StoreProvider interface {
	ConversationStore() store.ConversationStore
	MessageStore() store.MessageStore
	KnowledgeStore() store.KnowledgeStore
	Ping(ctx context.Context) error
	Transaction(ctx context.Context, next func(ctx context.Context) error) error
	Close() error
}

type Core struct {
	cfg        CoreConfig
	srv        *srv.Srv
	stores     StoreProvider
	redis      redis.UniversalClient
	limiter    *ratelimit.Limiter
	knowledge  *knowledge.Cache
	bus        *eventbus.Bus
	tools      *tools.Registry
	channels   *channels.Registry
	locks      *KeyedMutex
	httpEngine *gin.Engine

	metrics *Metrics
}

// Components are the pre-built dependencies handed to New. Nil fields are
// built from the config where possible.
type Components struct {
	Stores StoreProvider
	LLM    srv.LLM
	Redis  redis.UniversalClient
}

func MustSetupCore(cfg CoreConfig) *Core {
	setupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		panic(err)
	}

	core, err := New(cfg, Components{
		Stores: setupSqlStore(cfg),
		Redis:  setupRedis(cfg.Redis),
	})
	if err != nil {
		panic(err)
	}
	return core
}

func setupLogger(cfg Log) {
	var writer io.Writer = os.Stdout
	if cfg.Path != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    100, // megabytes
			MaxBackups: 7,
			MaxAge:     30, //days
			Compress:   true,
		}
	}
	l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(l)
}

func setupSqlStore(cfg CoreConfig) *sqlstore.Provider {
	provider := sqlstore.MustSetup(cfg.Postgres)
	if err := provider.Install(); err != nil {
		panic(err)
	}
	slog.Info("sql store ready", slog.String("component", "core"))
	return provider
}

// setupRedis returns nil when the shared tier is disabled. An unreachable
// server is only logged; every redis user falls back to local state.
func setupRedis(cfg RedisConfig) redis.UniversalClient {
	if !cfg.Enabled {
		return nil
	}
	client, err := NewRedisClient(cfg)
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, using local fallbacks", slog.String("error", err.Error()), slog.String("component", "core"))
	} else {
		slog.Info("redis connected", slog.String("component", "core"))
	}
	return client
}

// New assembles the core around already connected dependencies.
func New(cfg CoreConfig, c Components) (*Core, error) {
	if c.Stores == nil {
		return nil, errors.New("core requires a store provider")
	}

	core := &Core{
		cfg:        cfg,
		stores:     c.Stores,
		redis:      c.Redis,
		bus:        eventbus.New(),
		tools:      tools.NewRegistry(),
		locks:      NewKeyedMutex(),
		httpEngine: gin.New(),
		metrics:    NewMetrics("supportchat", "core"),
	}

	limiterOpts := []ratelimit.Option{ratelimit.WithCleanupInterval(cfg.RateLimit.Cleanup)}
	knowledgeOpts := []knowledge.Option{
		knowledge.WithTTL(cfg.Knowledge.LocalTTL, cfg.Knowledge.SharedTTL),
		knowledge.WithRecorder(core.metrics),
	}
	if c.Redis != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithRedis(c.Redis, cfg.Redis.KeyPrefix+"ratelimit:"))
		knowledgeOpts = append(knowledgeOpts, knowledge.WithShared(NewCache(c.Redis), cfg.Redis.KeyPrefix))
	}
	core.limiter = ratelimit.New(limiterOpts...)
	core.knowledge = knowledge.NewCache(c.Stores.KnowledgeStore(), knowledgeOpts...)

	setupEventBus(core)

	if cfg.Tools.Enabled {
		core.tools.RegisterMany(tools.SupportTools()...)
	}

	core.channels = channels.NewRegistry(
		channels.NewWeb(),
		channels.NewTelegram(channels.TelegramConfig{
			BotToken:      cfg.Channels.Telegram.BotToken,
			WebhookSecret: cfg.Channels.Telegram.WebhookSecret,
		}),
		channels.NewWhatsApp(channels.WhatsAppConfig{
			AccessToken:   cfg.Channels.WhatsApp.AccessToken,
			PhoneNumberID: cfg.Channels.WhatsApp.PhoneNumberID,
			WebhookSecret: cfg.Channels.WhatsApp.WebhookSecret,
		}),
	)

	applyAI := srv.ApplyAI(context.Background(), cfg.AI, srv.WithRecorder(core.metrics))
	if c.LLM != nil {
		applyAI = srv.ApplyLLM(c.LLM)
	}
	s, err := srv.SetupSrvs(applyAI)
	if err != nil {
		return nil, err
	}
	core.srv = s

	return core, nil
}

func setupEventBus(core *Core) {
	core.bus.SetFailureRecorder(core.metrics)
	eventbus.RegisterLogging(core.bus)
	core.bus.Subscribe(eventbus.LLM_REQUEST_FAILED, func(ctx context.Context, event eventbus.Event) error {
		core.metrics.ChatFailedInc()
		return nil
	})
}

func (s *Core) Cfg() CoreConfig {
	return s.cfg
}

func (s *Core) HttpEngine() *gin.Engine {
	return s.httpEngine
}

func (s *Core) Metrics() *Metrics {
	return s.metrics
}

func (s *Core) Store() StoreProvider {
	return s.stores
}

func (s *Core) Srv() *srv.Srv {
	return s.srv
}

// Redis is nil when the shared tier is disabled.
func (s *Core) Redis() redis.UniversalClient {
	return s.redis
}

func (s *Core) Limiter() *ratelimit.Limiter {
	return s.limiter
}

func (s *Core) Knowledge() *knowledge.Cache {
	return s.knowledge
}

func (s *Core) Bus() *eventbus.Bus {
	return s.bus
}

func (s *Core) Tools() *tools.Registry {
	return s.tools
}

func (s *Core) Channels() *channels.Registry {
	return s.channels
}

func (s *Core) Locks() *KeyedMutex {
	return s.locks
}

// Start launches the background jobs.
func (s *Core) Start() error {
	return s.limiter.Start()
}

// Shutdown releases every resource the core owns.
func (s *Core) Shutdown() error {
	s.limiter.Stop()

	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if closer, ok := s.srv.AI().(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	errs = append(errs, s.stores.Close())
	return errors.Join(errs...)
}
