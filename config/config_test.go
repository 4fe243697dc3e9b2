package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/parcel-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "DB_PATH", "LOCK_TTL", "LOG_LEVEL", "CORS_ORIGINS", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, config.DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "parcel.db", cfg.DBPath)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "svc")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "parcels")
	t.Setenv("LOCK_TTL", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, config.DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 5*time.Second, cfg.LockTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "host=db port=6543 user=svc password=secret dbname=parcels sslmode=disable", cfg.PostgresDSN())
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("PORT", "eighty")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("PORT", "")
	t.Setenv("DB_DRIVER", "mysql")
	_, err = config.Load()
	assert.Error(t, err)
}

func TestLogError_WritesStructuredEntry(t *testing.T) {
	logger, hook := test.NewNullLogger()

	config.LogError(logger, "finance", "Approve", "settle", map[string]int{"bill_id": 3}, errors.New("boom"))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "boom", entry.Message)
	assert.Equal(t, "finance", entry.Data["module"])
	assert.Equal(t, "Approve", entry.Data["funcName"])
	assert.Contains(t, entry.Data, "data")
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	logger := config.NewLogger("chatty", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	logger = config.NewLogger("debug", "json")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	_, isJSON := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, isJSON)
}
