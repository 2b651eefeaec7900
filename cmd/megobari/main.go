// Command megobari runs the single-user Telegram coding-agent bridge:
// it loads configuration, opens the embedded store, and starts the
// Telegram transport, Scheduler, and Dashboard as one process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/megobari/megobari/internal/actions"
	"github.com/megobari/megobari/internal/agentinvoker"
	"github.com/megobari/megobari/internal/appkernel"
	"github.com/megobari/megobari/internal/commands"
	"github.com/megobari/megobari/internal/config"
	"github.com/megobari/megobari/internal/dashboard"
	"github.com/megobari/megobari/internal/eventbus"
	"github.com/megobari/megobari/internal/monitor"
	"github.com/megobari/megobari/internal/scheduler"
	"github.com/megobari/megobari/internal/sessionstore"
	"github.com/megobari/megobari/internal/store"
	"github.com/megobari/megobari/internal/summarizer"
	"github.com/megobari/megobari/internal/transport/telegram"
	"github.com/megobari/megobari/internal/turnengine"
	"github.com/megobari/megobari/internal/voiceplugin"
)

func main() {
	log := newLogger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("megobari exited")
	}
}

func run(log zerolog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	for _, dir := range []string{cfg.HomeDir, cfg.SessionsDir(), cfg.ReportsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DBPath(), log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := applySeedFile(ctx, cfg, st, log); err != nil {
		return fmt.Errorf("apply config.yaml: %w", err)
	}

	sessions := sessionstore.New(cfg.SessionsDir(), log)
	if err := sessions.Load(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	invoker := agentinvoker.New(cfg.AgentCommand, cfg.AgentArgs, log)
	executor := actions.NewExecutor(st, cfg.RestartMarkerPath(), log)
	engine := turnengine.New(invoker, st, st, sessions, executor, log)

	sum := summarizer.New(st, summarizer.NewAgentSender(invoker, cfg.WorkingDir), log)
	engine.OnTurnComplete = func(sessionName string) {
		sum.MaybeSummarizeBackground(context.Background(), sessionName, cfg.AllowedUserID)
	}

	fetcher := monitor.NewChromeFetcher(cfg.GitHubToken)
	mon := monitor.New(st, fetcher, engine, cfg.WorkingDir, cfg.ReportsDir(), log)

	bus := eventbus.New(log)

	access := telegram.Access{
		UserID:    cfg.AllowedUserID,
		Username:  cfg.AllowedUsername,
		Discovery: cfg.Discovery,
	}

	// deps.Scheduler/Sender are filled in below, once the Bot (a
	// transport.Sender) and Scheduler exist; the Dispatcher only reads
	// them when a command actually runs, which is after Start.
	deps := &commands.Deps{
		Store:    st,
		Sessions: sessions,
		Engine:   engine,
		Monitor:  mon,
		Executor: executor,
		Config:   cfg,
		Log:      log,
	}

	transcriber := voiceplugin.New(cfg.OpenAIAPIKey, cfg.VoiceModel)
	dispatcher := commands.NewDispatcher(deps, transcriber)

	bot, err := telegram.New(cfg.BotToken, access, sessions, dispatcher, log)
	if err != nil {
		return fmt.Errorf("init telegram: %w", err)
	}
	deps.Sender = bot

	sched := scheduler.New(st, engine, bot, cfg.WorkingDir, 0, log)
	deps.Scheduler = sched
	sched.SetMonitorCheck(func(ctx context.Context, hourLabel string) (string, error) {
		digests, err := mon.RunSweep(ctx, "", "")
		if err != nil || len(digests) == 0 {
			return "", err
		}
		if pending, err := mon.NotifySubscribers(ctx, digests, hourLabel); err != nil {
			log.Warn().Err(err).Msg("failed to notify monitor subscribers")
		} else {
			commands.DeliverMonitorNotifications(ctx, deps, pending)
		}
		return monitor.FormatDigestMessage(digests, hourLabel), nil
	})

	dash := dashboard.New(st, sessions, engine, sched, mon, bus, log)

	if chatID, ok := actions.LoadRestartMarker(cfg.RestartMarkerPath()); ok {
		if err := bot.SendToChat(ctx, chatID, "✅ Restarted.", false); err != nil {
			log.Warn().Err(err).Msg("failed to deliver restart notice")
		}
	}

	kernel := appkernel.New(log)
	kernel.Add(&schedulerModule{sched: sched})
	kernel.Add(&telegramModule{bot: bot})
	kernel.Add(&dashboardModule{server: dash, addr: cfg.DashboardAddr, log: log})

	if err := kernel.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return kernel.Stop(shutdownCtx)
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// schedulerModule adapts *scheduler.Scheduler's non-blocking Start/Stop
// methods to appkernel.Module.
type schedulerModule struct {
	sched *scheduler.Scheduler
}

func (m *schedulerModule) Name() string { return "scheduler" }

func (m *schedulerModule) Start(ctx context.Context) error {
	m.sched.Start()
	return nil
}

func (m *schedulerModule) Stop(ctx context.Context) error {
	m.sched.Stop()
	return nil
}

// telegramModule runs Bot.Start's blocking long-poll loop in a goroutine;
// Stop relies on the shared ctx cancellation Start already honors, and
// just waits for the loop to notice.
type telegramModule struct {
	bot  *telegram.Bot
	done chan struct{}
}

func (m *telegramModule) Name() string { return "telegram" }

func (m *telegramModule) Start(ctx context.Context) error {
	m.done = make(chan struct{})
	go func() {
		defer close(m.done)
		m.bot.Start(ctx) // reconnects internally; only returns once ctx is done.
	}()
	return nil
}

func (m *telegramModule) Stop(ctx context.Context) error {
	select {
	case <-m.done:
	case <-ctx.Done():
	}
	return nil
}

// dashboardModule runs the dashboard's blocking ListenAndServe in a
// goroutine and shuts it down gracefully via http.Server.Shutdown.
type dashboardModule struct {
	server *dashboard.Server
	addr   string
	log    zerolog.Logger
}

func (m *dashboardModule) Name() string { return "dashboard" }

func (m *dashboardModule) Start(ctx context.Context) error {
	go func() {
		if err := m.server.Start(m.addr); err != nil {
			m.log.Error().Err(err).Msg("dashboard server stopped")
		}
	}()
	return nil
}

func (m *dashboardModule) Stop(ctx context.Context) error {
	return m.server.Shutdown(ctx)
}
