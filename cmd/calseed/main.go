package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"calseed/internal/attachments"
	"calseed/internal/config"
	"calseed/internal/directory"
	"calseed/internal/events"
	"calseed/internal/gcal"
	"calseed/internal/generator"
	"calseed/internal/history"
	"calseed/internal/metrics"
	"calseed/internal/notify"
	"calseed/internal/quota"
	"calseed/internal/report"
	"calseed/internal/slots"
	"calseed/internal/templates"
	"calseed/internal/worker"
)

func main() {
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	configPath := flag.String("config", os.Getenv("CALSEED_CONFIG_PATH"), "path to config file")
	cleanup := flag.Bool("cleanup", false, "delete every generated event recorded in the ledger, then exit")
	once := flag.Bool("once", false, "run a single generation cycle, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Google.CredentialsFile == "" {
		logger.Fatal().Msg("set google.credentials_file in config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rps, burst := cfg.RequestRate()
	calClient, err := gcal.NewClient(cfg.Google.CredentialsFile, rps, burst)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create calendar client")
	}

	historyDB, err := history.NewDB(cfg.History.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open history db")
	}
	defer historyDB.Close()

	if *cleanup {
		cleaner := history.NewCleaner(historyDB, calClient, logger)
		if _, err := cleaner.Run(ctx); err != nil {
			logger.Fatal().Err(err).Msg("cleanup failed")
		}
		return
	}

	tmpls, err := templates.Load(cfg.Templates.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load templates")
	}
	logger.Info().Int("templates", len(tmpls)).Msg("templates loaded")

	dir, err := directory.NewService(ctx, cfg.Google.CredentialsFile, cfg.Google.AdminSubject, cfg.Google.Domain)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create directory service")
	}

	var rdb *redis.Client
	if ttl := cfg.CacheTTL(); ttl > 0 {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		dir.UseRedisCache(rdb, ttl)
	}

	// Fail fast on an empty directory before any cycle runs.
	users, err := dir.ListUsers(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to list users")
	}
	if len(users) == 0 {
		logger.Fatal().Msg("directory returned no users")
	}
	logger.Info().Int("users", len(users)).Msg("directory loaded")

	bus := events.NewBus()
	bus.Subscribe(func(o events.Outcome) {
		metrics.IncOutcome(string(o.Kind))
		evt := logger.Info()
		if o.Kind == events.OutcomeFailed {
			evt = logger.Warn()
		}
		evt.Str("cycle_id", o.CycleID).
			Int64("template_id", o.TemplateID).
			Str("organizer", o.Organizer).
			Str("outcome", string(o.Kind)).
			Str("reason", o.Reason).
			Msg("assignment attempt")
	})
	bus.Subscribe(func(o events.Outcome) {
		if o.Kind != events.OutcomeCreated {
			return
		}
		if err := historyDB.RecordCreated(context.Background(), o.CycleID, o.TemplateID, o.Organizer, o.EventID, o.Start); err != nil {
			logger.Error().Err(err).Str("event_id", o.EventID).Msg("failed to record created event")
		}
	})

	var reportWriter *report.Writer
	if cfg.Report.Enabled {
		reportWriter = report.NewWriter(cfg.Report.Dir)
		bus.Subscribe(reportWriter.Handle)
	}

	var notifier *notify.TelegramNotifier
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		notifier, err = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Error().Err(err).Msg("telegram notifier disabled")
			notifier = nil
		}
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	randomizer := slots.New(slots.Config{LookaheadDays: cfg.Generator.LookAheadInDays}, rng, nil)

	orch := generator.New(
		generator.Config{
			LookaheadDays: cfg.Generator.LookAheadInDays,
			Caps: quota.Caps{
				Organization: cfg.Generator.MaxEventsInOrg,
				PerUser:      cfg.Generator.MaxEventsPerUser,
				PerDay:       cfg.Generator.MaxEventsOnSameDay,
			},
		},
		tmpls,
		dir,
		calClient,
		attachments.NewStore(cfg.Templates.AttachmentsDir),
		randomizer,
		rng,
		bus,
		logger,
	)

	runner := &instrumentedRunner{
		orch:     orch,
		report:   reportWriter,
		notifier: notifier,
		logger:   logger,
	}

	if cfg.History.Backup.Enabled {
		backup := history.NewBackup(cfg.History.Path, history.BackupConfig{
			Dir:           cfg.History.Backup.Dir,
			Interval:      time.Duration(cfg.History.Backup.IntervalHours) * time.Hour,
			RetentionDays: cfg.History.Backup.RetentionDays,
		}, logger)
		go backup.Run(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, historyDB, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	w := worker.New(cfg.WorkerInterval(), runner, logger)
	logger.Info().Msg("calseed started")
	if *once {
		w.RunNow(ctx)
		return
	}
	w.Start(ctx)
}

// instrumentedRunner wraps the orchestrator with post-cycle reporting:
// prometheus counters, the excel report, and the optional telegram summary.
type instrumentedRunner struct {
	orch     *generator.Orchestrator
	report   *report.Writer
	notifier *notify.TelegramNotifier
	logger   zerolog.Logger
}

func (r *instrumentedRunner) RunCycle(ctx context.Context) (generator.CycleResult, error) {
	res, err := r.orch.RunCycle(ctx)
	if err != nil {
		metrics.IncCycle("error")
	} else {
		metrics.IncCycle("ok")
		metrics.SetOrgQuotaRemaining(res.OrgRemaining)
	}

	if r.report != nil && res.CycleID != "" {
		if path, rerr := r.report.Flush(res.CycleID); rerr != nil {
			r.logger.Error().Err(rerr).Msg("failed to write cycle report")
		} else if path != "" {
			r.logger.Info().Str("path", path).Msg("cycle report written")
		}
	}

	if r.notifier != nil && err == nil {
		if nerr := r.notifier.SendCycleSummary(res); nerr != nil {
			r.logger.Error().Err(nerr).Msg("failed to send cycle summary")
		}
	}

	return res, err
}

func startHealthServer(ctx context.Context, port int, db *history.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
