package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/warp/court-engine/config"
	"github.com/warp/court-engine/courts"
	"github.com/warp/court-engine/generic"
	"github.com/warp/court-engine/notify"
	"github.com/warp/court-engine/store/postgres"
	"github.com/warp/court-engine/store/sqlite"
	"github.com/warp/court-engine/worker"
)

// database is what both store implementations offer beyond generic.Store.
type database interface {
	generic.Store
	Migrate(ctx context.Context) ([]int64, error)
	Version(ctx context.Context) (int64, error)
	Close() error
}

// app carries the process-wide dependencies built from Config.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     database
	loc    *time.Location
}

func newApp(ctx context.Context, envFile string) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", zap.String("driver", cfg.DBDriver), zap.String("env", cfg.Env))

	return &app{cfg: cfg, logger: logger, db: db, loc: loc}, nil
}

func openStore(ctx context.Context, cfg config.Config) (database, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.DBDSN)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.DBDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// service loads the weekly template and builds the request-layer facade.
func (a *app) service(ctx context.Context) (*courts.Service, error) {
	schedule, err := generic.LoadDemandSchedule(ctx, a.db)
	if err != nil {
		return nil, fmt.Errorf("load demand schedule: %w", err)
	}
	if schedule.Len() == 0 {
		a.logger.Warn("demand schedule is empty; run `courts seed` before taking bookings")
	}

	return courts.NewService(a.db, schedule, courts.Options{
		Location:     a.loc,
		MaxRetries:   a.cfg.MaxRetries,
		ReminderLead: a.cfg.ReminderLead,
		Logger:       a.logger.Named("courts"),
	}), nil
}

// executor wires the notification handler for every task type it renders.
func (a *app) executor(svc *courts.Service) (*worker.Executor, error) {
	renderer, err := notify.NewRenderer(a.loc)
	if err != nil {
		return nil, err
	}

	var mailer notify.Mailer
	if a.cfg.SMTPEnabled() {
		mailer, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     a.cfg.SMTPHost,
			Port:     a.cfg.SMTPPort,
			Username: a.cfg.SMTPUsername,
			Password: a.cfg.SMTPPassword,
			From:     a.cfg.SMTPFrom,
		})
		if err != nil {
			return nil, err
		}
	} else {
		a.logger.Warn("SMTP_HOST not set; emails are logged, not sent")
		mailer = notify.NewLogMailer(a.logger.Named("mail"))
	}

	handler := notify.NewTaskHandler(a.db, mailer, renderer, nil, a.logger.Named("notify"))
	exec := worker.NewExecutor(svc.Tasks(), a.logger.Named("worker"))
	exec.PollInterval = a.cfg.PollInterval
	for _, t := range handler.Types() {
		exec.Register(t, handler)
	}
	return exec, nil
}
