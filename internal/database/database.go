package database

import (
	"example.com/potrack/config"
	"example.com/potrack/internal/models"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connection holds the primary and read-only database handles. The
// read-only handle falls back to the primary one when no replica DSN
// is configured.
type Connection struct {
	DB         *gorm.DB
	ReadOnlyDB *gorm.DB
}

// Connect establishes the database connections and runs migrations
func Connect(cfg config.DatabaseConfig) (*Connection, error) {
	db, err := open(cfg.DSN, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err := models.SetupModels(db); err != nil {
		return nil, err
	}

	readOnlyDB := db
	if cfg.ReadOnlyDSN != "" {
		readOnlyDB, err = open(cfg.ReadOnlyDSN, cfg)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to read-only database")
		}
	}

	return &Connection{DB: db, ReadOnlyDB: readOnlyDB}, nil
}

func open(dsn string, cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get DB instance")
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// Close closes both database connections
func (c *Connection) Close() error {
	if c.ReadOnlyDB != nil && c.ReadOnlyDB != c.DB {
		if sqlDB, err := c.ReadOnlyDB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
