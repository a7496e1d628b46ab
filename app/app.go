// Package app wires configuration, stores and services into one value that the
// commands share.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"enquiryflow/auth"
	"enquiryflow/config"
	"enquiryflow/customer"
	"enquiryflow/db"
	"enquiryflow/metrics"
	"enquiryflow/migrations"
)

type App struct {
	Config *config.Config
	Log    *logrus.Logger

	// Services
	Customers *customer.Service
	Auth      *auth.Service

	// Repositories
	CustomerRepo customer.Repository
	UserRepo     auth.Repository

	pool  *pgxpool.Pool
	mongo *mongo.Client
	mdb   *mongo.Database
}

// New opens the configured store and builds the services on top of it.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	a := &App{Config: cfg, Log: log}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.pool = pool
		a.CustomerRepo = customer.NewRepository(pool)
		a.UserRepo = auth.NewRepository(pool)
	case config.DriverMongo:
		client, err := db.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.mongo = client
		a.mdb = client.Database(cfg.Mongo.Database)
		a.CustomerRepo = customer.NewMongoRepository(a.mdb)
		a.UserRepo = auth.NewMongoRepository(a.mdb)
	default:
		return nil, fmt.Errorf("app: unknown store driver %q", cfg.Store.Driver)
	}

	a.Customers = customer.NewService(a.CustomerRepo).
		WithTimeout(cfg.Store.Timeout).
		WithLogger(log.WithField("component", "customer"))
	a.Auth = auth.NewService(a.UserRepo, auth.TokenConfig{
		AccessSecret:  cfg.JWT.Secret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	}).WithLogger(log.WithField("component", "auth"))

	metrics.StoreUp(true)
	return a, nil
}

// Prepare brings the store schema up to date: SQL migrations for Postgres,
// indexes for Mongo. It returns the number of migrations applied.
func (a *App) Prepare(ctx context.Context) (int, error) {
	switch {
	case a.pool != nil:
		return migrations.Apply(ctx, a.pool)
	case a.mdb != nil:
		if err := customer.NewMongoRepository(a.mdb).EnsureIndexes(ctx); err != nil {
			return 0, err
		}
		if err := auth.NewMongoRepository(a.mdb).EnsureIndexes(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return 0, errors.New("app: no store configured")
}

// Rollback reverts up to steps SQL migrations. Mongo has nothing to roll back.
func (a *App) Rollback(ctx context.Context, steps int) (int, error) {
	if a.pool == nil {
		return 0, fmt.Errorf("app: rollback needs the %s driver", config.DriverPostgres)
	}
	return migrations.Rollback(ctx, a.pool, steps)
}

// PendingMigrations lists SQL migrations not yet applied.
func (a *App) PendingMigrations(ctx context.Context) ([]string, error) {
	if a.pool == nil {
		return nil, nil
	}
	return migrations.Pending(ctx, a.pool)
}

// Ping checks the active store and updates the store_up gauge.
func (a *App) Ping(ctx context.Context) error {
	var err error
	switch {
	case a.pool != nil:
		err = a.pool.Ping(ctx)
	case a.mongo != nil:
		err = a.mongo.Ping(ctx, nil)
	default:
		err = errors.New("app: no store configured")
	}
	metrics.StoreUp(err == nil)
	return err
}

func (a *App) Close(ctx context.Context) error {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.mongo != nil {
		return a.mongo.Disconnect(ctx)
	}
	return nil
}
