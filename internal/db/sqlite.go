package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/scoutline/scoutline-backend/internal/logger"
)

// SqliteService backs the durable store in single-node deployments where
// running Postgres is not worth it.
type SqliteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSqliteService(path string, log *logger.Logger) (*SqliteService, error) {
	serviceLog := log.With("service", "SqliteService")

	serviceLog.Info("Opening sqlite database...", "path", path)
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		serviceLog.Error("Failed to open sqlite database", "error", err)
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return &SqliteService{db: gdb, log: serviceLog}, nil
}

func (s *SqliteService) DB() *gorm.DB { return s.db }

func (s *SqliteService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sqlite tables...")
	return AutoMigrate(s.db)
}
