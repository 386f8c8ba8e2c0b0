package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DefaultConfig returns a MySQL configuration with sensible pool and GORM defaults.
// Host, database and credentials still have to be filled in.
func DefaultConfig() *Config {
	return &Config{
		Port:                   3306,
		Charset:                "utf8mb4",
		Collation:              "utf8mb4_unicode_ci",
		TimeZone:               "UTC",
		MaxOpenConns:           25,
		MaxIdleConns:           5,
		ConnMaxLifetime:        time.Hour,
		ConnMaxIdleTime:        30 * time.Minute,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		QueryTimeout:           30 * time.Second,
		Logging: LoggingConfig{
			Level:              "error",
			SlowQueryThreshold: 200 * time.Millisecond,
		},
	}
}

// NewDefaultManager creates a database manager with minimal configuration
func NewDefaultManager(host, database, username, password string) (*Manager, error) {
	config := DefaultConfig()
	config.Host = host
	config.Database = database
	config.Username = username
	config.Password = password

	return NewManager(config)
}

// NewManager creates a new database manager instance with full configuration
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := gorm.Open(mysql.Open(config.GetDSN()), newGormConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	return &Manager{
		config: config,
		db:     db,
	}, nil
}

// NewManagerFromDB wraps an already opened MySQL connection. Pool settings are
// left to the caller. A nil config uses DefaultConfig.
func NewManagerFromDB(sqlDB *sql.DB, config *Config) (*Manager, error) {
	if sqlDB == nil {
		return nil, fmt.Errorf("sql.DB cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), newGormConfig(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm on existing connection: %w", err)
	}

	return &Manager{
		config: config,
		db:     db,
	}, nil
}

func newGormConfig(config *Config) *gorm.Config {
	// SQL logs go through the process-wide slog handler
	writer := slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo)
	return &gorm.Config{
		SkipDefaultTransaction:                   config.SkipDefaultTransaction,
		DisableForeignKeyConstraintWhenMigrating: config.DisableForeignKeyConstraintWhenMigrating,
		PrepareStmt:                              config.PrepareStmt,
		Logger: logger.New(writer, logger.Config{
			SlowThreshold:             config.Logging.SlowQueryThreshold,
			LogLevel:                  getLogLevel(config.Logging.Level),
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      !config.Logging.LogQueryParameters,
		}),
	}
}

// DB returns the GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// SqlDB returns the underlying sql.DB instance
func (m *Manager) SqlDB() (*sql.DB, error) {
	return m.db.DB()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		sqlDB, err := m.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Ping tests the database connection
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Stats returns database connection statistics
func (m *Manager) Stats() (sql.DBStats, error) {
	sqlDB, err := m.db.DB()
	if err != nil {
		return sql.DBStats{}, err
	}
	return sqlDB.Stats(), nil
}

func getLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "info", "debug":
		return logger.Info
	case "warn":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Error // Default to error
	}
}
