package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		PGDSN:                "postgres://ledger@localhost/ledger",
		SequenceBackend:      "postgres",
		AppReadTimeout:       time.Second,
		AppWriteTimeout:      time.Second,
		AppRequestTimeout:    time.Second,
		LedgerPostTimeout:    time.Second,
		IdempotencyRetention: time.Hour,
		RateLimitPerMinute:   10,
		ReconcileBatchSize:   10,
	}
}

// unsetEnv clears keys for the test and restores them afterwards, including
// values the env file sets.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestValidateNormalisesBackend(t *testing.T) {
	cfg := validConfig()
	cfg.SequenceBackend = "Redis"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, SequenceBackendRedis, cfg.SequenceBackend)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := validConfig()
	cfg.SequenceBackend = "etcd"
	cfg.PGDSN = ""
	cfg.LedgerPostTimeout = 0
	cfg.ReconcileBatchSize = -1

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "SEQUENCE_BACKEND")
	assert.Contains(t, msg, "PG_DSN")
	assert.Contains(t, msg, "LEDGER_POST_TIMEOUT")
	assert.Contains(t, msg, "RECONCILE_BATCH_SIZE")
}

func TestLoadConfigReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.env")
	require.NoError(t, os.WriteFile(path, []byte("SEQUENCE_BACKEND=redis\nREDIS_DB=3\nLEDGER_POST_TIMEOUT=2s\n"), 0o600))
	// the environment wins over the file
	t.Setenv("REDIS_DB", "4")
	unsetEnv(t, "SEQUENCE_BACKEND", "LEDGER_POST_TIMEOUT")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, SequenceBackendRedis, cfg.SequenceBackend)
	assert.Equal(t, 4, cfg.RedisDB)
	assert.Equal(t, 2*time.Second, cfg.LedgerPostTimeout)
	assert.Equal(t, 100, cfg.ReconcileBatchSize)
	assert.Equal(t, 720*time.Hour, cfg.IdempotencyRetention)

	opts := cfg.RedisOptions()
	assert.Equal(t, cfg.RedisAddr, opts.Addr)
	assert.Equal(t, 4, opts.DB)
	assert.Equal(t, 4, cfg.QueueRedisOpt().DB)
}

func TestLoadConfigIgnoresMissingFile(t *testing.T) {
	t.Setenv("SEQUENCE_BACKEND", "postgres")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, SequenceBackendPostgres, cfg.SequenceBackend)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("SEQUENCE_BACKEND", "memcached")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.ErrorContains(t, err, "SEQUENCE_BACKEND")
}

func TestIsProductionNilSafe(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsProduction())
	assert.True(t, (&Config{AppEnv: "production"}).IsProduction())
}
