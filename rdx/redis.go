package rdx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// New opens a client and checks it answers.
func New(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	conn := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return conn, nil
}
