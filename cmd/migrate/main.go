package main

import (
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"

	"github.com/khoahotran/prospect-sync/internal/config"
	"github.com/khoahotran/prospect-sync/pkg/logger"
)

func main() {
	source := flag.String("path", "file://migrations", "migration source URL")
	down := flag.Bool("down", false, "roll back every migration instead of applying")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: cannot load config: %v", err)
	}
	appLogger := logger.NewZapLogger(cfg.App.Env, "prospect-sync-migrate")
	defer appLogger.Sync()

	m, err := migrate.New(*source, cfg.DB.DSN)
	if err != nil {
		appLogger.Fatal("Cannot create migrate instance", err)
	}
	defer m.Close()

	if *down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		appLogger.Fatal("Migration failed", err)
	}

	version, dirty, _ := m.Version()
	appLogger.Info("Migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
