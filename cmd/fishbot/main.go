// Command fishbot runs the fish store Telegram bot.
//
// Configuration comes from defaults, an optional JSON/YAML file (--config)
// and environment variables, in increasing priority:
//
//	TELEGRAM_TOKEN=... STRAPI_URL=http://localhost:1337 STRAPI_TOKEN=... fishbot run
//	fishbot --config bot.yaml check
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/urfave/cli/v2"
	"github.com/yelena0000/fish-store/cart"
	"github.com/yelena0000/fish-store/catalog"
	"github.com/yelena0000/fish-store/conversation"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/internal/health"
	"github.com/yelena0000/fish-store/strapi"
	"github.com/yelena0000/fish-store/telegram"
	"github.com/yelena0000/fish-store/telemetry"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fishbot: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "fishbot",
		Usage:   "Telegram bot for the fish store",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a JSON or YAML configuration file",
				EnvVars: []string{"FISHBOT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level (debug, info, warn, error)",
			},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "start polling Telegram and serving health probes",
				Action: run,
			},
			{
				Name:   "check",
				Usage:  "validate the configuration and check that the CMS and Redis are reachable",
				Action: check,
			},
		},
	}
}

func loadConfig(c *cli.Context) (*core.Config, error) {
	var opts []core.Option
	if level := c.String("log-level"); level != "" {
		opts = append(opts, core.WithLogLevel(level))
	}
	return core.LoadConfig(c.String("config"), opts...)
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := core.NewLogger(cfg.Logging, cfg.Name)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry failures never stop the bot.
	provider, err := telemetry.Initialize(ctx, cfg.Telemetry, cfg.Name)
	if err != nil {
		logger.Warn("Telemetry initialization failed, continuing without it", map[string]interface{}{"error": err})
		provider = &telemetry.Provider{}
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", map[string]interface{}{"error": err})
		}
	}()

	cms, err := newCMSClient(cfg, logger)
	if err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	machine := conversation.NewMachine(
		catalog.NewBrowser(cms, logger.WithComponent("catalog")),
		cart.NewService(cms, logger.WithComponent("cart")),
		store,
		conversation.WithPageSize(cfg.Catalog.PageSize),
		conversation.WithLogger(logger.WithComponent("conversation")),
	)

	// The HTTP client must outlive a long poll. The token is part of every
	// Bot API URL and must not reach spans or logs.
	token := cfg.Telegram.Token
	pollClient := telemetry.NewTracedHTTPClient(
		time.Duration(cfg.Telegram.PollTimeout+10)*time.Second,
		telemetry.WithRedactedSecret(token),
	)
	if err := tgbotapi.SetLogger(telegram.NewLibraryLogger(logger.WithComponent("tgbotapi"), token)); err != nil {
		return err
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, pollClient)
	if err != nil {
		return fmt.Errorf("failed to connect to Telegram: %w", telegram.RedactToken(err, token))
	}
	bot.Debug = cfg.Telegram.Debug
	logger.Info("Authorized on Telegram", map[string]interface{}{"bot": bot.Self.UserName})

	gateway := telegram.NewGateway(bot, machine,
		telegram.WithWorkers(cfg.Workers),
		telegram.WithBotToken(token),
		telegram.WithPollTimeout(cfg.Telegram.PollTimeout),
		telegram.WithRateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		telegram.WithLogger(logger.WithComponent("telegram")),
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return gateway.Run(ctx, bot) })

	if cfg.HTTP.Addr != "" {
		probes := health.NewServer(cfg.HTTP.Addr, cfg.Name, logger.WithComponent("health"))
		probes.AddCheck("strapi", cms)
		if checker, ok := store.(core.HealthChecker); ok {
			probes.AddCheck("sessions", checker)
		}
		eg.Go(func() error { return probes.Run(ctx) })
	}

	logger.Info("Fish store bot started", map[string]interface{}{
		"version":       version,
		"workers":       cfg.Workers,
		"redis":         cfg.RedisURL != "",
		"telemetry":     provider.Enabled(),
		"health_server": cfg.HTTP.Addr,
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Bot stopped with error", map[string]interface{}{"error": err})
		return err
	}
	logger.Info("Fish store bot stopped", nil)
	return nil
}

func newCMSClient(cfg *core.Config, logger *core.ProductionLogger) (*strapi.Client, error) {
	return strapi.NewClient(cfg.Strapi.URL, cfg.Strapi.Token,
		strapi.WithHTTPClient(telemetry.NewTracedHTTPClient(cfg.Strapi.Timeout)),
		strapi.WithLogger(logger.WithComponent("strapi")),
	)
}

// newSessionStore picks Redis when configured, otherwise the in-process store.
func newSessionStore(cfg *core.Config, logger *core.ProductionLogger) (conversation.SessionStore, func(), error) {
	if cfg.RedisURL == "" {
		return conversation.NewMemorySessionStore(cfg.Session.TTL, cfg.Session.CleanupInterval), func() {}, nil
	}

	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  cfg.RedisURL,
		DB:        core.RedisDBSessions,
		Namespace: cfg.Name,
		Logger:    logger.WithComponent("redis"),
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Using Redis session store", map[string]interface{}{
		"db":        client.GetDB(),
		"namespace": client.GetNamespace(),
		"ttl":       cfg.Session.TTL.String(),
	})
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client", map[string]interface{}{"error": err})
		}
	}
	return conversation.NewRedisSessionStore(client, cfg.Session.TTL, logger.WithComponent("sessions")), closeFn, nil
}

func check(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	logger := core.NewLogger(cfg.Logging, cfg.Name)
	ctx, cancel := context.WithTimeout(c.Context, 15*time.Second)
	defer cancel()

	cms, err := newCMSClient(cfg, logger)
	if err != nil {
		return err
	}
	var failed []error
	if err := cms.Ping(ctx); err != nil {
		failed = append(failed, fmt.Errorf("strapi: %w", err))
	} else {
		logger.Info("CMS reachable", map[string]interface{}{"url": cfg.Strapi.URL})
	}

	if cfg.RedisURL != "" {
		store, closeStore, err := newSessionStore(cfg, logger)
		if err != nil {
			failed = append(failed, fmt.Errorf("redis: %w", err))
		} else {
			defer closeStore()
			if err := store.(core.HealthChecker).HealthCheck(ctx); err != nil {
				failed = append(failed, fmt.Errorf("redis: %w", err))
			} else {
				logger.Info("Redis reachable", nil)
			}
		}
	}

	if len(failed) > 0 {
		return errors.Join(failed...)
	}
	logger.Info("Configuration OK", nil)
	return nil
}
