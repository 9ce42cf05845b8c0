package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hibiki-bot/hibiki/internal/archive"
	"github.com/hibiki-bot/hibiki/internal/config"
	"github.com/hibiki-bot/hibiki/internal/discord"
	"github.com/hibiki-bot/hibiki/internal/logging"
	"github.com/hibiki-bot/hibiki/internal/memory"
	"github.com/hibiki-bot/hibiki/internal/provider"
	"github.com/hibiki-bot/hibiki/internal/responder"
	"github.com/hibiki-bot/hibiki/internal/search"
	"github.com/hibiki-bot/hibiki/internal/server"
	"github.com/hibiki-bot/hibiki/internal/tokencount"
	"github.com/hibiki-bot/hibiki/internal/tracing"
)

// NewServeCmd constructs the `hibiki serve` command, which connects to the
// Discord gateway and runs the bot until interrupted.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Connect to Discord and start answering messages",
		Long: `Connect to the Discord gateway and answer every message in the target
channel through the configured LLM backend.

Examples:
  hibiki serve
  MODEL_PROVIDER=ollama hibiki serve
  hibiki serve --config ./hibiki.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			settings := config.FromEnv()
			if err := settings.Validate(); err != nil {
				return err
			}

			// Langfuse tracing is opt-in; a no-op when keys are absent.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("backend", string(providerCfg.Backend)),
				slog.String("model", providerCfg.Model))

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			// Precise token counting is only available on the Gemini backend;
			// everything else runs on the character heuristic.
			var counter memory.Counter
			if providerCfg.Backend == provider.BackendGemini {
				gc, err := tokencount.NewGeminiCounter(ctx, providerCfg.APIKey, providerCfg.Model)
				if err != nil {
					return fmt.Errorf("serve: initialise token counter: %w", err)
				}
				counter = gc
			} else {
				log.Info("precise token counting unavailable, using character heuristic",
					slog.String("backend", string(providerCfg.Backend)))
			}

			estimator := memory.NewEstimator(counter, log, reg)
			store := memory.NewStore(memory.Policy{
				MaxAge:      settings.MaxAge,
				MaxMessages: settings.MaxMessages,
				TokenLimit:  settings.TokenLimit,
			}, estimator, log, reg)

			arch := openArchive(settings.ArchiveDBPath, log)
			if arch != nil {
				defer func() { _ = arch.Close() }()
			}

			session, err := discord.New(settings.DiscordToken, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			respCfg := &responder.Config{
				TargetChannelID:   settings.TargetChannelID,
				Store:             store,
				Assembler:         memory.NewAssembler(store, session, settings.HistoryFetchLimit),
				Chat:              chatModel,
				Messenger:         session,
				SearchResultCount: settings.SearchResultCount,
				Archive:           arch,
				Log:               log,
				Registry:          reg,
			}
			if settings.SearchEnabled() {
				respCfg.Searcher = search.NewClient(&search.Config{
					APIKey:   settings.SearchAPIKey,
					EngineID: settings.SearchEngineID,
				})
			} else {
				log.Info("search commands disabled", slog.String("reason", "GOOGLE_SEARCH_API_KEY not set"))
			}

			ops := server.New(settings.OpsAddr, reg, log)
			go func() {
				if err := ops.Start(); err != nil {
					log.Error("ops server failed", slog.Any("error", err))
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := ops.Shutdown(shutdownCtx); err != nil {
					log.Warn("ops server shutdown", slog.Any("error", err))
				}
			}()

			log.Info("serve starting",
				slog.String("target_channel", settings.TargetChannelID),
				slog.Duration("memory_max_age", settings.MaxAge),
				slog.Int("memory_max_messages", settings.MaxMessages),
				slog.Int("memory_token_limit", settings.TokenLimit))

			return session.Run(ctx, responder.New(respCfg))
		},
	}
}

// openArchive opens the transcript archive, resolving the default path when
// none is configured. Failures disable archiving rather than aborting startup.
func openArchive(dbPath string, log *slog.Logger) *archive.Archive {
	if dbPath == "disabled" {
		log.Info("archive disabled via HIBIKI_ARCHIVE_DB=disabled")
		return nil
	}
	if dbPath == "" {
		p, err := archive.DefaultDBPath()
		if err != nil {
			log.Warn("archive: could not resolve default path, disabling", slog.Any("error", err))
			return nil
		}
		dbPath = p
	}
	a, err := archive.Open(dbPath)
	if err != nil {
		log.Warn("archive: failed to open, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("archive opened", slog.String("path", dbPath))
	return a
}
