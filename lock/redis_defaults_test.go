package lock

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestNewRedis_Defaults(t *testing.T) {
	r := NewRedis(redis.NewClient(&redis.Options{}), 0, nil)

	assert.Equal(t, 30*time.Second, r.ttl)
	if assert.NotNil(t, r.log) {
		assert.NotPanics(t, func() { r.log.WithField("key", "k").Warn("release") })
	}
}
