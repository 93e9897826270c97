// Package main is the entry point for the signal trading bot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tathienbao/signal-bot/internal/alerting"
	"github.com/tathienbao/signal-bot/internal/broker"
	"github.com/tathienbao/signal-bot/internal/broker/ibkr"
	"github.com/tathienbao/signal-bot/internal/broker/paper"
	"github.com/tathienbao/signal-bot/internal/config"
	"github.com/tathienbao/signal-bot/internal/dialogue"
	"github.com/tathienbao/signal-bot/internal/dispatch"
	"github.com/tathienbao/signal-bot/internal/metrics"
	"github.com/tathienbao/signal-bot/internal/persistence"
	"github.com/tathienbao/signal-bot/internal/preset"
	"github.com/tathienbao/signal-bot/internal/telegram"
	"github.com/tathienbao/signal-bot/internal/webhook"
)

// Version information (set by build flags).
var (
	Version   = "0.2.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	case "run":
		cmdRun(os.Args[2:])
	case "validate":
		cmdValidate(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Signal Bot - Webhook-Driven Trade Execution

Usage:
  signal-bot <command> [options]

Commands:
  run        Start the bot
  validate   Validate configuration file
  version    Show version information
  help       Show this help message

Examples:
  signal-bot run --config config.yaml
  signal-bot validate --config config.yaml

Use "signal-bot <command> --help" for more information about a command.`)
}

func cmdVersion() {
	fmt.Printf("signal-bot version %s\n", Version)
	fmt.Printf("  Build time: %s\n", BuildTime)
	fmt.Printf("  Git commit: %s\n", GitCommit)
}

func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration is valid!")
	fmt.Printf("  Broker: %s\n", cfg.Broker.Type)
	fmt.Printf("  Preset file: %s\n", cfg.Presets.Path)
	fmt.Printf("  Webhook: :%d%s\n", cfg.Webhook.Port, cfg.Webhook.Path)
	fmt.Printf("  Telegram enabled: %t\n", cfg.Telegram.Enabled)
	fmt.Printf("  Quote timeout: %s\n", cfg.QuoteTimeout())
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	fs.Parse(args)

	// Secrets (bot token, chat ID) come from the environment; a local
	// .env file is honored when present.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("signal-bot starting",
		"version", Version,
		"broker", cfg.Broker.Type,
		"webhook_port", cfg.Webhook.Port,
	)
	metrics.SetBuildInfo(Version)

	// Preset store
	store, err := preset.NewStore(cfg.Presets.Path, logger)
	if err != nil {
		slog.Error("failed to load preset store", "error", err)
		os.Exit(1)
	}

	// Broker gateway
	var gateway broker.Gateway
	switch cfg.Broker.Type {
	case "ibkr":
		ibkrCfg := ibkr.DefaultConfig()
		ibkrCfg.Host = cfg.Broker.Host
		ibkrCfg.Port = cfg.Broker.Port
		ibkrCfg.ClientID = cfg.Broker.ClientID
		ibkrCfg.ConnectTimeout = cfg.ConnectTimeout()
		gateway = ibkr.NewClient(ibkrCfg, logger)
	default:
		gateway = paper.NewGateway(paper.DefaultConfig(), logger)
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.ConnectTimeout())
	if err := gateway.Connect(connectCtx); err != nil {
		// Signals will retry the connection on arrival.
		slog.Warn("broker not reachable at startup", "error", err)
	}
	cancelConnect()
	defer func() { _ = gateway.Close() }()

	// Alerting
	var channels []alerting.Alerter
	if cfg.Alerting.Enabled {
		for _, ch := range cfg.Alerting.Channels {
			switch ch.Type {
			case "telegram":
				channels = append(channels, alerting.NewTelegramAlerter(alerting.TelegramConfig{
					BotToken: ch.BotToken,
					ChatID:   ch.ChatID,
				}))
			case "console":
				channels = append(channels, alerting.NewConsoleAlerter(logger))
			}
		}
	}
	alerter := alerting.NewMultiAlerter(logger, channels...)

	// Audit log
	var audit persistence.AuditLog
	if cfg.Persistence.Enabled {
		sqlite, err := persistence.NewSQLiteAuditLog(cfg.Persistence.Path)
		if err != nil {
			slog.Error("failed to open audit log", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sqlite.Close() }()
		audit = sqlite
	}

	recorder := metrics.NewRecorder()
	recorder.RecordPresetCount(store.Len())

	// Dispatcher + webhook endpoint
	dispatcher := dispatch.New(store, gateway, dispatch.Options{
		Alerter:      alerter,
		Audit:        audit,
		Recorder:     recorder,
		Logger:       logger,
		QuoteTimeout: cfg.QuoteTimeout(),
	})

	webhookServer := webhook.NewServer(webhook.Config{
		Port: cfg.Webhook.Port,
		Path: cfg.Webhook.Path,
	}, dispatcher, logger)
	webhookServer.Start()

	// Operator bot
	manager := dialogue.NewManager(store, alerter, logger)
	if cfg.Telegram.Enabled {
		bot := telegram.NewBot(telegram.Config{
			BotToken: cfg.Telegram.BotToken,
		}, manager, store, logger)
		go func() {
			if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
				slog.Error("telegram bot stopped", "error", err)
			}
		}()
	}

	// Metrics server
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{
			Port:        cfg.Metrics.Port,
			MetricsPath: cfg.Metrics.Path,
			HealthPath:  "/health",
		}, logger)
		metricsServer.RegisterHealthCheck("broker", func() metrics.Check {
			if gateway.IsConnected() {
				return metrics.Check{Status: "healthy"}
			}
			return metrics.Check{Status: "unhealthy", Message: "broker not connected"}
		})
		_ = metricsServer.Start()
	}

	// Periodic gauge refresh
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				recorder.RecordBrokerStatus(gateway.IsConnected())
				recorder.RecordPresetCount(store.Len())
				recorder.RecordDialogueSessions(manager.ActiveCount())
			}
		}
	}()

	startupCtx, cancelStartup := context.WithTimeout(ctx, 10*time.Second)
	_ = alerter.AlertEvent(startupCtx, alerting.EventBotStarted,
		fmt.Sprintf("Signal bot started (v%s)", Version),
		"broker", cfg.Broker.Type,
		"presets", store.Len(),
	)
	cancelStartup()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := webhookServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("webhook shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown failed", "error", err)
		}
	}

	_ = alerter.AlertEvent(shutdownCtx, alerting.EventBotStopped, "Signal bot stopped")
	slog.Info("shutdown complete")
}
