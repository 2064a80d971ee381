package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connection settings sized for the lock workload: every command is a
// single SETNX or EVAL round trip, so short timeouts and a small pool
// are enough.
const (
	commandTimeout = 2 * time.Second
	connectTimeout = 5 * time.Second
	poolSize       = 10
)

// NewRedisClient connects to the Redis instance backing the schedule
// locks and verifies it is reachable before handing the client out.
func NewRedisClient(addr, username, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Username:     username,
		Password:     password,
		DB:           0,
		ReadTimeout:  commandTimeout,
		WriteTimeout: commandTimeout,
		PoolSize:     poolSize,
		MinIdleConns: 1,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return rdb, nil
}
