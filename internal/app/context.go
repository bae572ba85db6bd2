package app

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/repo"
)

// App is an opened workspace: config, migrated database and engine.
type App struct {
	Config *config.Config
	DB     *sqlx.DB
	Engine engine.Engine
	Log    *zap.Logger
	// SchemaVersion is the migration version the database is at.
	SchemaVersion int
}

func (a *App) Close() error {
	_ = a.Log.Sync()
	return a.DB.Close()
}

// Open loads the workspace config (defaults when absent), opens and
// migrates the database and seeds the service catalog from config.
func Open(ctx context.Context, workspace string, dev bool) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	log, err := NewLogger(cfg.Log.Level, dev)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN, Workspace: workspace})
	if err != nil {
		return nil, err
	}
	version, err := migrate.Migrate(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg, log)
	if err := SeedServices(ctx, e.Repo, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug("workspace opened", zap.String("workspace", workspace), zap.String("driver", conn.DriverName()), zap.Int("schema_version", version))
	return &App{Config: cfg, DB: conn, Engine: e, Log: log, SchemaVersion: version}, nil
}

// SeedServices upserts the services declared in config. Services removed
// from config are kept so existing cases still resolve.
func SeedServices(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	ids := make([]string, 0, len(cfg.Services))
	for id := range cfg.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sc := cfg.Services[id]
		amount, err := decimal.NewFromString(sc.Tariff)
		if err != nil {
			return fmt.Errorf("service %s: invalid tariff %q", id, sc.Tariff)
		}
		svc := domain.Service{ID: id, Description: sc.Description, TariffAmount: amount, TariffCurrency: sc.Currency}
		if err := r.UpsertService(ctx, r.DB, svc); err != nil {
			return fmt.Errorf("seed service %s: %w", id, err)
		}
	}
	return nil
}

// NewLogger builds a production JSON logger, or a console one when dev is set.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
