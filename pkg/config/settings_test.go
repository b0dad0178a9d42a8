package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENCRYPTPASSWORD", "secret")

	s, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "8080", s.Port)
	assert.Equal(t, SchedulerBackground, s.Scheduler.Mode)
	assert.Equal(t, CustodyPaper, s.Custody.Backend)
	assert.Equal(t, 5, s.Trade.WalletCount)
	assert.Equal(t, 5*time.Second, s.Scheduler.SyncInterval)
	assert.False(t, s.Custody.AllowUnverifiedFunding)
	assert.False(t, s.RabbitMQ.Enabled())
	assert.False(t, s.Redis.Enabled())
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		"ENCRYPTPASSWORD=pw\nWALLET_COUNT=3\nSCHEDULER_MODE=inline\nCONFIRM_TIMEOUT=90s\nALLOWED_ORIGINS=https://a.example, https://b.example\n",
	), 0600))
	for _, k := range []string{"ENCRYPTPASSWORD", "WALLET_COUNT", "SCHEDULER_MODE", "CONFIRM_TIMEOUT", "ALLOWED_ORIGINS"} {
		k := k
		t.Cleanup(func() { os.Unsetenv(k) })
	}

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Trade.WalletCount)
	assert.Equal(t, SchedulerInline, s.Scheduler.Mode)
	assert.Equal(t, 90*time.Second, s.Trade.ConfirmTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, s.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENCRYPTPASSWORD", "pw")
	t.Setenv("CUSTODY_BACKEND", CustodySolana)
	t.Setenv("WALLET_COUNT", "0")
	t.Setenv("SCHEDULER_MODE", "cron")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "WALLET_COUNT")
	assert.ErrorContains(t, err, "SCHEDULER_MODE")
	assert.ErrorContains(t, err, "DEFAULT_SOLANA_RPC")
	assert.ErrorContains(t, err, "DEPOSIT_ADDRESS")
}

func TestDSNAndURL(t *testing.T) {
	d := DatabaseSettings{Host: "db", Port: "5432", User: "u", Password: "p", Name: "bump", SSLMode: "disable", TimeZone: "UTC"}
	assert.Equal(t, "host=db user=u password=p dbname=bump port=5432 sslmode=disable TimeZone=UTC", d.DSN())

	r := RabbitMQSettings{Host: "mq", Port: "5672", User: "guest", Password: "guest"}
	assert.True(t, r.Enabled())
	assert.Equal(t, "amqp://guest:guest@mq:5672/", r.URL())
}
