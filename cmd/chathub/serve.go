package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chathubhq/chathub/internal/channel"
	"github.com/chathubhq/chathub/internal/config"
	"github.com/chathubhq/chathub/internal/crm"
	"github.com/chathubhq/chathub/internal/db"
	"github.com/chathubhq/chathub/internal/dispatch"
	"github.com/chathubhq/chathub/internal/events"
	"github.com/chathubhq/chathub/internal/fanout"
	"github.com/chathubhq/chathub/internal/handlers"
	"github.com/chathubhq/chathub/internal/healthcheck"
	"github.com/chathubhq/chathub/internal/healthcheck/checkers/broker"
	pgchecker "github.com/chathubhq/chathub/internal/healthcheck/checkers/postgres"
	"github.com/chathubhq/chathub/internal/ingest"
	"github.com/chathubhq/chathub/internal/logger"
	"github.com/chathubhq/chathub/internal/message"
	"github.com/chathubhq/chathub/internal/platform"
	"github.com/chathubhq/chathub/internal/platform/adapters/kwork"
	"github.com/chathubhq/chathub/internal/platform/adapters/telegram"
	"github.com/chathubhq/chathub/internal/platform/adapters/whatsapp"
	"github.com/chathubhq/chathub/internal/server"
	"github.com/chathubhq/chathub/internal/thread"
	"github.com/chathubhq/chathub/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideRegistry,
			provideChannelService,
			provideThreadService,
			provideMessageStore,
			fanout.NewHub,
			provideEventPublisher,
			provideCRMForwarder,
			provideHealthRunner,
			providePipeline,
			provideDispatcher,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideThreadsHandler),
			provideServerHandler(provideChannelsHandler),
			provideServerHandler(provideWSHandler),
			provideServer,
		),
		fx.Invoke(startServer),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return "config.toml"
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

// provideRegistry wires one adapter per platform and a sender for each
// platform that has outbound credentials configured. The Telegram sender is
// built first so the adapter can classify the bot's own messages as
// outbound.
func provideRegistry(log *slog.Logger, cfg config.Config) (*platform.Registry, error) {
	registry := platform.NewRegistry()

	var selfID string
	if cfg.Telegram.BotToken != "" {
		sender, err := telegram.NewSender(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram sender: %w", err)
		}
		selfID = sender.SelfID()
		registry.RegisterSender(platform.TypeTelegram, sender)
	} else {
		log.Warn("telegram bot token not configured, outbound telegram disabled")
	}
	registry.MustRegister(telegram.NewAdapter(selfID))

	registry.MustRegister(whatsapp.NewAdapter())
	if cfg.WhatsApp.AccessToken != "" && cfg.WhatsApp.PhoneNumberID != "" {
		registry.RegisterSender(platform.TypeWhatsApp,
			whatsapp.NewSender(cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneNumberID, cfg.WhatsApp.APIBaseURL))
	} else {
		log.Warn("whatsapp credentials not configured, outbound whatsapp disabled")
	}

	registry.MustRegister(kwork.NewAdapter())
	if cfg.Kwork.BaseURL != "" && cfg.Kwork.APIToken != "" {
		registry.RegisterSender(platform.TypeKwork,
			kwork.NewSender(cfg.Kwork.BaseURL, cfg.Kwork.APIToken))
	} else {
		log.Warn("kwork credentials not configured, outbound kwork disabled")
	}

	return registry, nil
}

func provideChannelService(conn *pgxpool.Pool, log *slog.Logger) *channel.Service {
	return channel.NewService(conn, log)
}

func provideThreadService(conn *pgxpool.Pool, log *slog.Logger) *thread.Service {
	return thread.NewService(conn, log)
}

func provideMessageStore(conn *pgxpool.Pool, log *slog.Logger) *message.Store {
	return message.NewStore(conn, log)
}

func provideEventPublisher(lc fx.Lifecycle, cfg config.Config, log *slog.Logger) (*events.Publisher, error) {
	pub, err := events.NewPublisher(cfg.Events, log)
	if err != nil {
		return nil, fmt.Errorf("event publisher: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return pub.Close() }})
	return pub, nil
}

func provideCRMForwarder(cfg config.Config, log *slog.Logger) *crm.Forwarder {
	return crm.NewForwarder(cfg.CRM, log)
}

func providePipeline(registry *platform.Registry, channels *channel.Service, threads *thread.Service, store *message.Store, hub *fanout.Hub, pub *events.Publisher, forwarder *crm.Forwarder, log *slog.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(registry, channels, threads, store, hub, pub, forwarder, log)
}

func provideDispatcher(registry *platform.Registry, threads *thread.Service, channels *channel.Service, store *message.Store, hub *fanout.Hub, pub *events.Publisher, log *slog.Logger) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(registry, threads, channels, store, hub, pub, log)
}

func provideHealthRunner(log *slog.Logger, conn *pgxpool.Pool, pub *events.Publisher) *healthcheck.Runner {
	return healthcheck.NewRunner(
		pgchecker.NewChecker(log, conn),
		broker.NewChecker(log, pub),
	)
}

func providePingHandler(log *slog.Logger, health *healthcheck.Runner) *handlers.PingHandler {
	return handlers.NewPingHandler(log, health)
}

func provideWebhookHandler(log *slog.Logger, pipeline *ingest.Pipeline, cfg config.Config) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, pipeline, cfg.WhatsApp.VerifyToken)
}

func provideThreadsHandler(log *slog.Logger, threads *thread.Service, store *message.Store, dispatcher *dispatch.Dispatcher, hub *fanout.Hub) *handlers.ThreadsHandler {
	return handlers.NewThreadsHandler(log, threads, store, dispatcher, hub)
}

func provideChannelsHandler(log *slog.Logger, channels *channel.Service) *handlers.ChannelsHandler {
	return handlers.NewChannelsHandler(log, channels)
}

func provideWSHandler(log *slog.Logger, hub *fanout.Hub) *handlers.WSHandler {
	return handlers.NewWSHandler(log, hub)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Logger, params.Handlers)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting ChatHub %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
