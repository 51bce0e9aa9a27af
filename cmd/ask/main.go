// Command ask sends one prompt through the completion gateway and prints the
// reply. The credential comes from the stored preferences, falling back to
// PADCHAT_LLM_API_KEY.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/prefs"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: ask <prompt>")
		os.Exit(2)
	}
	prompt := strings.Join(os.Args[1:], " ")

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal("failed to load .env", zap.Error(err))
	}
	cfg := config.FromViper(config.NewViper())

	ctx := context.Background()
	credential := cfg.APIKey
	if backend, err := kv.Open(ctx, cfg.KV); err == nil {
		if stored := prefs.New(backend, logger).Credential(ctx); stored != "" {
			credential = stored
		}
		_ = backend.Close()
	} else {
		logger.Warn("persistence unavailable, using configured api key", zap.Error(err))
	}

	newClient, err := llm.NewClientFactory(cfg.LLM)
	if err != nil {
		logger.Fatal("failed to initialize LLM gateway", zap.Error(err))
	}
	gateway := llm.New(newClient, logger)
	completion, err := gateway.Complete(ctx, prompt, nil, credential)
	_ = gateway.Close()
	if err != nil {
		logger.Fatal("failed to generate completion",
			zap.Error(err),
			zap.Stringer("kind", llm.KindOf(err)))
	}
	fmt.Println(completion)
}
