// Package config reads server settings from flags, PADCHAT_* environment
// variables and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "PADCHAT"

type Config struct {
	Addr   string
	WebDir string
	KV     kv.Options
	LLM    llm.Config
	// APIKey is the fallback credential for cmd/ask.
	APIKey string
}

// NewViper returns a viper instance with defaults and env binding set up.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8100")
	v.SetDefault("web_dir", "web")
	v.SetDefault("kv.backend", kv.BackendSQLite)
	v.SetDefault("kv.sqlite_path", "padchat.db")
	v.SetDefault("kv.redis_addr", "localhost:6379")
	v.SetDefault("kv.redis_password", "")
	v.SetDefault("kv.redis_db", 0)
	v.SetDefault("kv.redis_prefix", "padchat:")
	v.SetDefault("llm.provider", llm.ProviderGoogleAI)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	return v
}

// LoadDotEnv loads .env if present; a missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Addr:   v.GetString("addr"),
		WebDir: v.GetString("web_dir"),
		KV: kv.Options{
			Backend:       v.GetString("kv.backend"),
			SQLitePath:    v.GetString("kv.sqlite_path"),
			RedisAddr:     v.GetString("kv.redis_addr"),
			RedisPassword: v.GetString("kv.redis_password"),
			RedisDB:       v.GetInt("kv.redis_db"),
			RedisPrefix:   v.GetString("kv.redis_prefix"),
		},
		LLM: llm.Config{
			Provider: v.GetString("llm.provider"),
			Model:    v.GetString("llm.model"),
			BaseURL:  v.GetString("llm.base_url"),
		},
		APIKey: v.GetString("llm.api_key"),
	}
}
