package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rewired-gh/derivwatch/internal/alerting"
	"github.com/rewired-gh/derivwatch/internal/analyzer"
	"github.com/rewired-gh/derivwatch/internal/broadcast"
	"github.com/rewired-gh/derivwatch/internal/config"
	"github.com/rewired-gh/derivwatch/internal/cue"
	"github.com/rewired-gh/derivwatch/internal/dashboard"
	"github.com/rewired-gh/derivwatch/internal/logger"
	"github.com/rewired-gh/derivwatch/internal/metrics"
	"github.com/rewired-gh/derivwatch/internal/models"
	"github.com/rewired-gh/derivwatch/internal/notifications"
	"github.com/rewired-gh/derivwatch/internal/storage"
	"github.com/rewired-gh/derivwatch/internal/telegram"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	envPath    = flag.String("env", ".env", "Path to optional .env file")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(cfg.Storage.MaxEvents, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()
	if n, err := store.CloseOpenEvents(time.Now(), storage.ReasonDisabled); err != nil {
		logger.Warn("Failed to close stale alert events: %v", err)
	} else if n > 0 {
		logger.Info("Closed %d alert events left open by a previous run", n)
	}

	api := analyzer.NewClient(
		cfg.Analyzer.BaseURL,
		cfg.Analyzer.Timeout,
		analyzer.ClientConfig{
			MaxRetries:          cfg.Analyzer.MaxRetries,
			RetryDelayBase:      cfg.Analyzer.RetryDelayBase,
			MaxIdleConns:        cfg.Analyzer.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Analyzer.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.Analyzer.IdleConnTimeout,
		},
	)

	player, err := newPlayer(cfg.Cue)
	if err != nil {
		logger.Fatal("Failed to initialize cue player: %v", err)
	}
	cues := cue.NewScheduler(player, cfg.Alerts.CueInterval)

	center := notifications.New(cfg.Alerts.NotificationTTL, nil)
	engine := alerting.New(center, engineConfig(cfg.Alerts), nil)
	if !cfg.Alerts.Enabled {
		engine.Disable()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var publisher *broadcast.Publisher
	if cfg.Redis.Enabled {
		rdb, err := broadcast.ConnectRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: %v", err)
		}
		publisher = broadcast.NewPublisher(rdb, cfg.Redis.Channel)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("Failed to close Redis client: %v", err)
			}
		}()
		logger.Info("Publishing alert transitions to redis channel %s", cfg.Redis.Channel)
	}

	freshness := metrics.NewPollFreshness(10*cfg.Analyzer.PollInterval, nil)
	if cfg.Metrics.Enabled {
		srv := metrics.StartServer(cfg.Metrics.Addr, func(ctx context.Context) error {
			if err := store.Ping(); err != nil {
				return fmt.Errorf("storage: %w", err)
			}
			return freshness.Check(ctx)
		})
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("Metrics server listening on %s", cfg.Metrics.Addr)
	}

	sink := &telegramSink{}
	deps := dashboard.Deps{
		API:       api,
		Engine:    engine,
		Center:    center,
		Cues:      cues,
		Notifier:  sink,
		Recorder:  store,
		History:   store,
		Freshness: freshness,
	}
	if publisher != nil {
		deps.Broadcaster = publisher
	}
	d := dashboard.New(deps, dashboard.Config{
		PollInterval:    cfg.Analyzer.PollInterval,
		CleanupInterval: cfg.Alerts.CleanupInterval,
	})

	if cfg.Telegram.Enabled {
		go connectTelegram(ctx, cfg.Telegram, sink, d)
	} else {
		logger.Debug("Telegram notifications disabled")
		d.GrantPermission(models.PermissionDenied)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Dashboard stopped: %v", err)
	}
	logger.Info("Service stopped")
}

// connectTelegram authenticates the bot off the loop goroutine. Success
// grants system notifications; failure denies them without retry.
func connectTelegram(ctx context.Context, cfg config.TelegramConfig, sink *telegramSink, d *dashboard.Dashboard) {
	client, err := telegram.NewClient(cfg.BotToken, cfg.ChatID, cfg.MaxRetries, cfg.RetryDelayBase, cfg.AutoDelete)
	if err != nil {
		logger.Error("Failed to initialize Telegram client: %v", err)
		d.GrantPermission(models.PermissionDenied)
		return
	}
	sink.client.Store(client)
	logger.Info("Telegram client initialized successfully")
	d.GrantPermission(models.PermissionGranted)

	client.ListenForCommands(ctx, func(c telegram.Command) {
		err := d.Submit(ctx, dashboard.Command{
			Name: c.Name,
			Args: c.Args,
			Reply: func(text string) {
				if err := client.Reply(text); err != nil {
					logger.Warn("Failed to reply to /%s: %v", c.Name, err)
				}
			},
		})
		if err != nil {
			logger.Debug("Dropped /%s: %v", c.Name, err)
		}
	})
}

// telegramSink forwards to the Telegram client once it is connected.
type telegramSink struct {
	client atomic.Pointer[telegram.Client]
}

var errTelegramNotReady = errors.New("telegram client not connected")

func (s *telegramSink) Notify(n models.SystemNotification) error {
	c := s.client.Load()
	if c == nil {
		return errTelegramNotReady
	}
	return c.Notify(n)
}

func (s *telegramSink) SendError(cycleErr error) error {
	c := s.client.Load()
	if c == nil {
		return errTelegramNotReady
	}
	return c.SendError(cycleErr)
}

func (s *telegramSink) SendRecovery(failureCount int) error {
	c := s.client.Load()
	if c == nil {
		return errTelegramNotReady
	}
	return c.SendRecovery(failureCount)
}

func newPlayer(cfg config.CueConfig) (cue.Player, error) {
	switch cfg.Player {
	case "command":
		wavPath := cfg.WAVPath
		if wavPath == "" {
			wavPath = filepath.Join(os.TempDir(), "derivwatch", "cue.wav")
		}
		return cue.NewCommandPlayer(cfg.Command, cfg.Args, wavPath)
	case "none":
		return cue.NopPlayer{}, nil
	default:
		return cue.BellPlayer{W: os.Stdout}, nil
	}
}

func engineConfig(cfg config.AlertsConfig) alerting.Config {
	ec := alerting.DefaultConfig()
	if len(cfg.Rules) > 0 {
		ec.Rules = alerting.ParseRules(cfg.Rules)
	}
	if len(cfg.SystemGroups) > 0 {
		ec.SystemGroups = cfg.SystemGroups
	}
	ec.OpportunityRate = cfg.OpportunityRate
	ec.WarningRate = cfg.WarningRate
	ec.MinEntries = cfg.MinEntries
	return ec
}
