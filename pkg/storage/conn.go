package storage

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ConnConfig bounds the database/sql pool behind a GormStorage.
type ConnConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration // 0 keeps connections forever
	MaxIdleTime time.Duration // 0 keeps idle connections forever
}

// memoryConns pins one connection for the lifetime of the store. A SQLite
// memory database is dropped with its last connection, and one connection
// also serializes writes.
var memoryConns = ConnConfig{MaxOpen: 1, MaxIdle: 1}

// ConnOption adjusts a ConnConfig.
type ConnOption interface {
	applyConn(*ConnConfig)
}

type connOptionFunc func(*ConnConfig)

func (f connOptionFunc) applyConn(c *ConnConfig) { f(c) }

// WithMaxOpenConns caps open connections. 0 is unlimited.
func WithMaxOpenConns(n int) ConnOption {
	return connOptionFunc(func(c *ConnConfig) { c.MaxOpen = n })
}

// WithMaxIdleConns caps idle connections.
func WithMaxIdleConns(n int) ConnOption {
	return connOptionFunc(func(c *ConnConfig) { c.MaxIdle = n })
}

// WithConnMaxLifetime recycles connections older than d.
func WithConnMaxLifetime(d time.Duration) ConnOption {
	return connOptionFunc(func(c *ConnConfig) { c.MaxLifetime = d })
}

// WithConnMaxIdleTime closes connections idle for longer than d.
func WithConnMaxIdleTime(d time.Duration) ConnOption {
	return connOptionFunc(func(c *ConnConfig) { c.MaxIdleTime = d })
}

func resolveConns(base ConnConfig, opts []ConnOption) ConnConfig {
	for _, opt := range opts {
		opt.applyConn(&base)
	}
	return base
}

// tune applies cfg to the *sql.DB behind db.
func tune(db *gorm.DB, cfg ConnConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get *sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.MaxIdleTime)
	return nil
}
