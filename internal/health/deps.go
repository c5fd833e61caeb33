package health

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SQLPing checks the SQL catalog connection.
func SQLPing(db *sql.DB) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
		return nil
	})
}

// RedisPing checks the Redis instance backing the rate limiter.
func RedisPing(client redis.UniversalClient) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		return nil
	})
}
