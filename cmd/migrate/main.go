// Command migrate prepares the configured store and optionally seeds an admin
// account.
//
// Usage:
//
//	./migrate                       # apply SQL migrations or ensure Mongo indexes
//	./migrate --status              # list pending SQL migrations
//	./migrate --rollback=1          # revert the newest SQL migration
//	./migrate --seed-admin --admin-password=Secret123
//
// Environment Variables:
//
//	STORE_DRIVER      - postgres (default) or mongo
//	DATABASE_URL      - PostgreSQL connection string
//	MONGODB_URI       - MongoDB connection string
//	MONGODB_DATABASE  - MongoDB database name
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"enquiryflow/app"
	"enquiryflow/auth"
	"enquiryflow/config"
)

type options struct {
	status        bool
	rollback      int
	seedAdmin     bool
	adminUsername string
	adminEmail    string
	adminMobile   string
	adminPassword string
}

func main() {
	var opts options
	flag.BoolVar(&opts.status, "status", false, "list pending migrations and exit")
	flag.IntVar(&opts.rollback, "rollback", 0, "revert this many migrations and exit")
	flag.BoolVar(&opts.seedAdmin, "seed-admin", false, "create an admin user after migrating")
	flag.StringVar(&opts.adminUsername, "admin-username", "admin", "admin username")
	flag.StringVar(&opts.adminEmail, "admin-email", "admin@example.com", "admin email")
	flag.StringVar(&opts.adminMobile, "admin-mobile", "9999999999", "admin mobile number")
	flag.StringVar(&opts.adminPassword, "admin-password", "", "admin password (required with --seed-admin)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)
	log := app.ServiceLogger(logger, "enquiry-migrate")

	if err := run(cfg, logger, log, opts); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, log *logrus.Entry, opts options) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	switch {
	case opts.status:
		pending, err := a.PendingMigrations(ctx)
		if err != nil {
			return err
		}
		log.WithField("pending", pending).Info("migration status")
		return nil
	case opts.rollback > 0:
		n, err := a.Rollback(ctx, opts.rollback)
		if err != nil {
			return err
		}
		log.WithField("reverted", n).Info("rollback complete")
		return nil
	}

	applied, err := a.Prepare(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"driver": cfg.Store.Driver, "applied": applied}).Info("store prepared")

	if !opts.seedAdmin {
		return nil
	}
	if opts.adminPassword == "" {
		return errors.New("--admin-password is required with --seed-admin")
	}

	user, err := a.Auth.Register(ctx, auth.RegisterRequest{
		Username: opts.adminUsername,
		Email:    opts.adminEmail,
		Mobile:   opts.adminMobile,
		Password: opts.adminPassword,
		Role:     auth.RoleAdmin,
	})
	switch {
	case errors.Is(err, auth.ErrDuplicateUsername):
		log.WithField("username", opts.adminUsername).Info("admin user already exists")
		return nil
	case err != nil:
		return fmt.Errorf("seed admin: %w", err)
	}
	log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("admin user created")
	return nil
}
