package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/padchat/internal/api"
	"github.com/RichardoC/padchat/internal/chat"
	"github.com/RichardoC/padchat/internal/config"
	"github.com/RichardoC/padchat/internal/kv"
	"github.com/RichardoC/padchat/internal/llm"
	"github.com/RichardoC/padchat/internal/prefs"
	"github.com/RichardoC/padchat/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if err := config.LoadDotEnv(); err != nil {
		logger.Fatal("failed to load .env", zap.Error(err))
	}

	v := config.NewViper()
	cmd := &cobra.Command{
		Use:           "padchat-server",
		Short:         "Serve the chat UI and its conversation API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.FromViper(v), logger)
		},
	}
	flags := cmd.Flags()
	flags.String("addr", ":8100", "listen address")
	flags.String("web-dir", "web", "directory of static UI files")
	flags.String("kv-backend", kv.BackendSQLite, "persistence backend: memory, sqlite or redis")
	flags.String("sqlite-path", "padchat.db", "sqlite database file")
	flags.String("llm-provider", llm.ProviderGoogleAI, "completion provider: googleai or openai")
	flags.String("llm-model", "", "model name, provider default when empty")
	flags.String("llm-base-url", "", "base URL for the openai provider")
	_ = v.BindPFlag("addr", flags.Lookup("addr"))
	_ = v.BindPFlag("web_dir", flags.Lookup("web-dir"))
	_ = v.BindPFlag("kv.backend", flags.Lookup("kv-backend"))
	_ = v.BindPFlag("kv.sqlite_path", flags.Lookup("sqlite-path"))
	_ = v.BindPFlag("llm.provider", flags.Lookup("llm-provider"))
	_ = v.BindPFlag("llm.model", flags.Lookup("llm-model"))
	_ = v.BindPFlag("llm.base_url", flags.Lookup("llm-base-url"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	backend, err := kv.Open(ctx, cfg.KV)
	if err != nil {
		logger.Error("failed to open persistence backend",
			zap.Error(err),
			zap.String("backend", cfg.KV.Backend))
		return err
	}
	defer func() {
		err = multierr.Append(err, backend.Close())
	}()

	conversations := store.New(backend, logger)
	if err := conversations.Load(ctx); err != nil {
		// keep serving from memory
		logger.Warn("failed to load conversations", zap.Error(err))
	}

	newClient, err := llm.NewClientFactory(cfg.LLM)
	if err != nil {
		return err
	}
	gateway := llm.New(newClient, logger)
	defer func() {
		err = multierr.Append(err, gateway.Close())
	}()
	settings := prefs.New(backend, logger)
	session := chat.NewSession(conversations, gateway, settings, logger)

	mux := http.NewServeMux()
	api.NewHandler(conversations, session, gateway, settings, logger).Routes(mux)
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebDir)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", cfg.Addr),
			zap.String("kvBackend", cfg.KV.Backend),
			zap.String("llmProvider", cfg.LLM.Provider))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
