package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"signal-core/internal/api"
	"signal-core/internal/engine"
	"signal-core/internal/events"
	"signal-core/internal/indicators"
	"signal-core/internal/market"
	"signal-core/internal/monitor"
	"signal-core/internal/notify"
	"signal-core/internal/order"
	"signal-core/internal/persistence"
	"signal-core/internal/risk"
	"signal-core/pkg/config"
	"signal-core/pkg/db"
	"signal-core/pkg/exchanges/common"
	"signal-core/pkg/exchanges/mexc"
	"signal-core/pkg/logger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	issueToken := flag.String("issue-token", "", "print an operator API token for the given name and exit")
	tokenTTL := flag.Duration("token-ttl", 72*time.Hour, "lifetime of a token minted with -issue-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, exp, err := api.IssueToken(cfg.JWTSecret, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires %s\n", token, exp.UTC().Format(time.RFC3339))
		return
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, lg); err != nil {
		lg.Fatal().Err(err).Msg("signal-core exited with error")
	}
	lg.Info().Msg("signal-core stopped")
}

func run(cfg *config.Config, lg zerolog.Logger) error {
	if v := os.Getenv("APP_VERSION"); v != "" && version == "dev" {
		version = v
	}
	lg.Info().
		Str("version", version).
		Bool("dry_run", cfg.DryRun).
		Strs("symbols", cfg.Symbols).
		Strs("timeframes", cfg.Timeframes).
		Msg("starting signal-core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	// Exchange: the live client serves market data unless the synthetic
	// feed is selected; in dry-run the simulator takes over orders and
	// balance. Signal evaluation always reads candles uncached; only the
	// simulator's fill checks go through the short-lived cache.
	client := mexc.NewClient(mexc.Config{
		APIKey:    cfg.MEXCAPIKey,
		APISecret: cfg.MEXCAPISecret,
		BaseURL:   cfg.MEXCBaseURL,
	})
	var source common.MarketData = client
	if cfg.UseMockFeed {
		source = &market.MockFeed{}
		lg.Warn().Msg("synthetic market feed enabled")
	}
	var (
		account common.Account = client
		gateway common.Gateway = client
	)
	venue := "mexc"
	var feed *market.CachedFeed
	if cfg.DryRun {
		feed = market.NewCachedFeed(source, cfg.MarketCacheTTL(), lg)
		dry := order.NewDryRunExchange(feed, order.DryRunConfig{
			InitialBalance: cfg.DryRunInitialBalance,
			Currency:       cfg.QuoteCurrency,
			FeeRate:        cfg.DryRunFeeRate,
		}, lg)
		account, gateway = dry, dry
		venue = "mexc-dry-run"
		lg.Info().Float64("balance", cfg.DryRunInitialBalance).Msg("dry-run exchange enabled")
	}

	// Notifications: log always, bus for /ws, Telegram when configured.
	notifiers := notify.Multi{notify.Log{Logger: lg}, notify.Bus{Bus: bus}}
	var telegram *notify.Async
	if cfg.TelegramEnabled() {
		telegram = notify.NewAsync(ctx, notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID), 64, 20*time.Second)
		notifiers = append(notifiers, telegram)
	} else {
		lg.Warn().Msg("telegram not configured; notifications go to the log only")
	}

	deps := order.Deps{
		Account:  account,
		Gateway:  gateway,
		Notifier: notifiers,
		Bus:      bus,
		Logger:   lg,
	}
	if cfg.JournalDBPath != "" {
		database, err := openJournal(cfg.JournalDBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		journal := persistence.NewBatchJournal(database, 50, 500*time.Millisecond, lg)
		defer journal.Close()
		deps.Journal = journal
		lg.Info().Str("path", cfg.JournalDBPath).Msg("order journal enabled")
	}

	manager := order.NewManager(order.Config{
		RiskFraction:         cfg.RiskFraction,
		Leverage:             cfg.Leverage,
		OpenType:             common.OpenType(cfg.OpenType),
		TakeProfitPct:        cfg.TakeProfitPct,
		StopLossPct:          cfg.StopLossPct,
		EntryOffset:          cfg.EntryOffset,
		QuoteCurrency:        cfg.QuoteCurrency,
		CancelTimeout:        cfg.CancelTimeout(),
		PollInterval:         cfg.OrderPollInterval(),
		AssumeFilledOnSubmit: cfg.AssumeFilledOnSubmit,
		Precisions:           precisions(cfg.Instruments),
	}, deps)
	dispatcher := order.NewDispatcher(manager, cfg.AllowOverlap, lg)

	scheduler := engine.NewScheduler(engine.SchedulerConfig{
		Symbols:             cfg.Symbols,
		Timeframes:          cfg.Timeframes,
		Interval:            cfg.PollInterval(),
		CandleLimit:         cfg.CandleLimit,
		OversoldThreshold:   cfg.OversoldThreshold,
		OverboughtThreshold: cfg.OverboughtThreshold,
		EnableShorts:        cfg.EnableShorts,
	}, engine.SchedulerDeps{
		Market:     source,
		Indicators: indicators.NewEngine(cfg.RSIPeriod),
		Dispatcher: dispatcher,
		Notifier:   notifiers,
		Bus:        bus,
		Logger:     lg,
	})
	eng := engine.New(scheduler, dispatcher, bus, engine.Meta{
		DryRun:  cfg.DryRun,
		Venue:   venue,
		Version: version,
	}, lg)

	recorder := monitor.NewRecorder()
	stats := monitor.NewSystemMetrics()
	(&monitor.Monitor{Bus: bus, Recorder: recorder, Stats: stats}).Start(ctx)

	server := api.NewServer(api.Deps{
		Engine:   eng,
		Notifier: notifiers,
		Bus:      bus,
		Recorder: recorder,
		Metrics:  stats,
		Logger:   lg,
	}, api.Options{
		JWTSecret: cfg.JWTSecret,
		BotToken:  cfg.TelegramBotToken,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if !cfg.DryRun {
			client.StartTimeSync(gctx)
		}
		return nil
	})
	if feed != nil {
		g.Go(func() error {
			feed.Janitor(gctx, time.Minute, 30*time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		return server.Serve(gctx, ":"+cfg.Port)
	})
	if cfg.GRPCHealthAddr != "" {
		health := api.NewHealthServer(eng, bus, lg)
		g.Go(func() error {
			return health.Serve(gctx, cfg.GRPCHealthAddr)
		})
	}
	g.Go(func() error {
		return eng.Run(gctx)
	})

	if cfg.AutoStart && eng.Start() {
		notifiers.Notify("✅ Bot started and ready to trade!")
	} else if !cfg.AutoStart {
		lg.Info().Msg("auto start disabled; waiting for /start")
	}

	err := g.Wait()
	stop()
	lg.Info().Int("in_flight", dispatcher.Active()).Msg("shutting down, waiting for running brackets")
	dispatcher.Close()
	if telegram != nil {
		<-telegram.Done()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openJournal(path string) (*db.Database, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.ApplyMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return database, nil
}

func precisions(instruments map[string]config.Instrument) risk.Precisions {
	if len(instruments) == 0 {
		return nil
	}
	out := make(risk.Precisions, len(instruments))
	for symbol, inst := range instruments {
		out[symbol] = risk.Precision{Price: inst.PricePrecision, Volume: inst.VolumePrecision}
	}
	return out
}
