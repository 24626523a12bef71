// Package database reads weather readings from a remoteweather TimescaleDB.
package database

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Client holds the connection to a TimescaleDB database
type Client struct {
	DB     *gorm.DB
	logger *zap.SugaredLogger
}

// NewClient wraps an open connection
func NewClient(db *gorm.DB, logger *zap.SugaredLogger) *Client {
	return &Client{DB: db, logger: logger}
}

// CreateConnection opens a TimescaleDB connection with gorm logging routed to zap
func CreateConnection(connectionString string, log *zap.SugaredLogger) (*gorm.DB, error) {
	dbLogger := logger.New(
		zap.NewStdLog(log.Desugar()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.Info("connecting to TimescaleDB...")
	db, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{Logger: dbLogger})
	if err != nil {
		return nil, fmt.Errorf("unable to create a TimescaleDB connection: %w", err)
	}
	log.Info("TimescaleDB connection successful")

	return db, nil
}

// LatestReading returns the newest one-minute bucket for a station that is
// later than since. The bool is false when there is no such bucket.
func (c *Client) LatestReading(ctx context.Context, station string, since time.Time) (BucketReading, bool, error) {
	var br BucketReading

	res := c.DB.WithContext(ctx).
		Where("stationname = ? AND bucket > ?", station, since).
		Order("bucket DESC").
		Limit(1).
		Find(&br)
	if res.Error != nil {
		return BucketReading{}, false, fmt.Errorf("error querying database for latest readings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return BucketReading{}, false, nil
	}

	return br, true, nil
}

// Close closes the underlying connection pool
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
