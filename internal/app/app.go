package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ykvlv/medreminder-bot/internal/config"
	"github.com/ykvlv/medreminder-bot/internal/ledger"
	"github.com/ykvlv/medreminder-bot/internal/scheduler"
	"github.com/ykvlv/medreminder-bot/internal/store"
	"github.com/ykvlv/medreminder-bot/internal/telegram"
	"github.com/ykvlv/medreminder-bot/internal/wizard"
)

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	reg      *prometheus.Registry
	sessions *wizard.SessionStore
	httpSrv  *http.Server
	repo     store.Repo
	router   *telegram.Router
	sched    *scheduler.Scheduler
}

func New(cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	bot.Debug = false

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessions := wizard.NewSessionStore(cfg.WizardTTL)
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wizard_sessions",
		Help: "Medication drafts currently in progress.",
	}, func() float64 { return float64(sessions.Len()) })

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      newMux(reg),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}

	return &App{cfg: cfg, log: log, bot: bot, reg: reg, sessions: sessions, httpSrv: srv}, nil
}

// newMux serves liveness and the metrics of reg.
func newMux(reg *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

// Run serves updates and reminders until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting medreminder-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.String("clockTZ", a.cfg.ClockTZ),
		zap.Duration("tick", a.cfg.TickInterval),
	)

	// Open SQLite and run migrations.
	repo, err := store.OpenSQLite(ctx, a.cfg.DBPath)
	if err != nil {
		a.log.Error("open sqlite failed", zap.Error(err))
		return err
	}
	a.repo = repo
	a.log.Info("sqlite ready", zap.String("path", a.cfg.DBPath))

	wiz := wizard.New(repo, a.sessions, a.log.Named("wizard"))
	ledg := ledger.New(repo, a.log.Named("ledger"), a.cfg.SnoozeDelay)
	a.router = telegram.NewRouter(a.bot, a.log.Named("telegram"), repo, wiz, ledg, telegram.Options{
		DefaultTZ: a.cfg.DefaultTZ,
		SendRate:  a.cfg.SendRate,
		SendBurst: a.cfg.SendBurst,
	})

	disp := scheduler.NewDispatcher(repo, a.router, a.cfg.ClockLocation(), scheduler.NewMetrics(a.reg), a.log.Named("dispatcher"))
	a.sched = scheduler.New(a.cfg.TickInterval, func(ctx context.Context, now time.Time) {
		disp.Tick(ctx, now)
	}, a.log.Named("scheduler"))

	if err := a.sched.Start(ctx); err != nil {
		_ = a.repo.Close()
		return err
	}

	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("http server error", zap.Error(err))
		}
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutting down")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown stops producers before closing the store they write to.
func (a *App) shutdown() {
	a.bot.StopReceivingUpdates()
	a.sched.Stop()

	// Create a short-lived shutdown context and cancel it immediately after use.
	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err := a.httpSrv.Shutdown(shCtx)
	cancel()
	if err != nil {
		a.log.Warn("http server shutdown error", zap.Error(err))
	}

	if err := a.repo.Close(); err != nil {
		a.log.Warn("sqlite close error", zap.Error(err))
	}
	a.log.Info("stopped")
}
