package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := FromViper(NewViper())

	assert.Equal(t, ":8100", cfg.Addr)
	assert.Equal(t, "web", cfg.WebDir)
	assert.Equal(t, kv.BackendSQLite, cfg.KV.Backend)
	assert.Equal(t, "padchat.db", cfg.KV.SQLitePath)
	assert.Equal(t, "padchat:", cfg.KV.RedisPrefix)
	assert.Equal(t, llm.ProviderGoogleAI, cfg.LLM.Provider)
	assert.Empty(t, cfg.APIKey)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PADCHAT_ADDR", ":9000")
	t.Setenv("PADCHAT_KV_BACKEND", "redis")
	t.Setenv("PADCHAT_KV_REDIS_DB", "3")
	t.Setenv("PADCHAT_LLM_PROVIDER", "openai")
	t.Setenv("PADCHAT_LLM_BASE_URL", "http://localhost:11434/v1/")

	cfg := FromViper(NewViper())

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, kv.BackendRedis, cfg.KV.Backend)
	assert.Equal(t, 3, cfg.KV.RedisDB)
	assert.Equal(t, llm.ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "http://localhost:11434/v1/", cfg.LLM.BaseURL)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PADCHAT_WEB_DIR=static\n"), 0o600))
	t.Setenv("PADCHAT_WEB_DIR", "")
	require.NoError(t, os.Unsetenv("PADCHAT_WEB_DIR"))
	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "static", FromViper(NewViper()).WebDir)
}
