package rdx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short lived SET NX locks under "lock:".
type Locker struct {
	conn redis.UniversalClient
	ttl  time.Duration
	log  *zerolog.Logger
}

func NewLocker(conn redis.UniversalClient, ttl time.Duration, log *zerolog.Logger) *Locker {
	return &Locker{conn: conn, ttl: ttl, log: log}
}

// TryAcquire takes the lock for key. ok is false when someone else holds it.
// The returned release is safe to call more than once.
func (l *Locker) TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	full := "lock:" + key

	ok, err = l.conn.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}

	var released bool
	release = func() {
		if released {
			return
		}
		released = true
		if err := releaseScript.Run(context.Background(), l.conn, []string{full}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", full).Msg("release lock")
		}
	}
	return release, true, nil
}
