package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/parcel"
)

const keyPrefix = "parcel:lock:"

// Redis is a Locker shared by every instance pointed at the same Redis.
// Lock retries until ctx is done, or for one TTL when ctx has no deadline.
type Redis struct {
	client *redislock.Client
	ttl    time.Duration
	retry  time.Duration
	log    logrus.FieldLogger
}

// NewRedis builds a Redis locker. A nil log discards release failures.
func NewRedis(rdb redis.Scripter, ttl time.Duration, log logrus.FieldLogger) *Redis {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Redis{
		client: redislock.New(rdb),
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		log:    log,
	}
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	lk, err := r.client.Obtain(ctx, keyPrefix+key, r.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, parcel.Unavailable("lock "+key, fmt.Errorf("held elsewhere: %w", err))
	}
	if err != nil {
		return nil, parcel.Unavailable("lock "+key, err)
	}

	return func() {
		// The caller's ctx may already be cancelled; release regardless.
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			r.log.WithFields(logrus.Fields{
				"module": "lock",
				"key":    key,
			}).Warn("release redis lock: " + err.Error())
		}
	}, nil
}
