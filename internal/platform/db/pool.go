package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// PoolOption customizes the pgxpool configuration before the pool is created.
type PoolOption func(*pgxpool.Config)

// WithQueryLog logs every statement through logger at the given level.
func WithQueryLog(logger zerolog.Logger, level tracelog.LogLevel) PoolOption {
	return func(cfg *pgxpool.Config) {
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   zerologAdapter{logger: logger},
			LogLevel: level,
		}
	}
}

func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32, opts ...PoolOption) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	for _, opt := range opts {
		opt(cfg)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

type zerologAdapter struct {
	logger zerolog.Logger
}

func (a zerologAdapter) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	var ev *zerolog.Event
	switch level {
	case tracelog.LogLevelTrace:
		ev = a.logger.Trace()
	case tracelog.LogLevelDebug:
		ev = a.logger.Debug()
	case tracelog.LogLevelInfo:
		ev = a.logger.Info()
	case tracelog.LogLevelWarn:
		ev = a.logger.Warn()
	default:
		ev = a.logger.Error()
	}
	ev.Fields(data).Msg(msg)
}

// ParseQueryLogLevel maps a zerolog level name onto the pgx tracer level.
func ParseQueryLogLevel(s string) (tracelog.LogLevel, error) {
	if s == "" {
		return tracelog.LogLevelNone, nil
	}
	return tracelog.LogLevelFromString(s)
}
