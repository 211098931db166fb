package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/pkg/crypto"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.App.Port)
	assert.Equal(t, "json", cfg.App.LogFormat)
	assert.Equal(t, 3, cfg.Upload.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Upload.RetryBackoffBase)
	assert.Equal(t, 10*time.Minute, cfg.Upload.ProgressTimeout)
	assert.Equal(t, "facebook.com", cfg.Upload.TargetDomain)
	assert.Equal(t, models.PlanBasic, cfg.Limits.Plan)
	assert.Equal(t, 10, cfg.Limits.BasicDailyLimit)
	assert.Equal(t, 5*time.Minute, cfg.Network.MaxRecoveryWait)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "uploadflow.events", cfg.RabbitMQ.Exchange)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := writeConfig(t, `
app:
  port: 9090
upload:
  maxattempts: 5
limits:
  plan: pro
`)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 5, cfg.Upload.MaxAttempts)
	assert.Equal(t, models.PlanPro, cfg.Limits.Plan)
	// Untouched values keep their defaults.
	assert.Equal(t, "facebook.com", cfg.Upload.TargetDomain)
	assert.Equal(t, 30*time.Second, cfg.Upload.RetryBackoffBase)
}

func TestLoad_UnknownPlanFallsBackToBasic(t *testing.T) {
	dir := writeConfig(t, `
limits:
  plan: enterprise
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, models.PlanBasic, cfg.Limits.Plan)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UPLOADFLOW_DATA_DIR", "/mnt/videos")
	t.Setenv("UPLOADFLOW_LAUNCHER_API_KEY", "env-key")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "/mnt/videos", cfg.Data.BaseDir)
	assert.Equal(t, "env-key", cfg.Launcher.APIKey)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
}

func TestLoad_MalformedFileErrors(t *testing.T) {
	dir := writeConfig(t, "app: [not a map")

	_, err := Load(dir)
	assert.Error(t, err)
}

func TestResolveAPIKey_PlainKeyPassesThrough(t *testing.T) {
	key, err := resolveAPIKey("plain-key", "")
	require.NoError(t, err)
	assert.Equal(t, "plain-key", key)
}

func TestResolveAPIKey_EncryptedRoundTrip(t *testing.T) {
	enc, err := crypto.NewEncryptor(crypto.DeriveKey("master-pass", launcherKeySalt))
	require.NoError(t, err)
	ciphertext, err := enc.Encrypt("secret-launcher-key")
	require.NoError(t, err)

	key, err := resolveAPIKey(encryptedPrefix+ciphertext, "master-pass")
	require.NoError(t, err)
	assert.Equal(t, "secret-launcher-key", key)
}

func TestResolveAPIKey_EncryptedWithoutMasterKey(t *testing.T) {
	_, err := resolveAPIKey("enc:whatever", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPLOADFLOW_MASTER_KEY")
}

func TestResolveAPIKey_WrongMasterKey(t *testing.T) {
	enc, err := crypto.NewEncryptor(crypto.DeriveKey("right-pass", launcherKeySalt))
	require.NoError(t, err)
	ciphertext, err := enc.Encrypt("secret")
	require.NoError(t, err)

	_, err = resolveAPIKey(encryptedPrefix+ciphertext, "wrong-pass")
	assert.Error(t, err)
}
