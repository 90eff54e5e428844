package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/amara/docwise/internal/config"
	"github.com/amara/docwise/internal/logger"
	"github.com/amara/docwise/internal/tracing"
	"github.com/amara/docwise/pkg/conversation"
	"github.com/amara/docwise/pkg/docsession"
	"github.com/amara/docwise/pkg/gateway"
	"github.com/amara/docwise/pkg/llm"
	"github.com/amara/docwise/pkg/pipeline"
	"github.com/amara/docwise/pkg/qa"
	"github.com/amara/docwise/pkg/vectorindex"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Docwise QA server",
	Long: `Start the HTTP gateway, vector index, session stores, and the
scheduled session cleanup job. The server runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath := cfgFile
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	log := appLogger.Zerolog()

	if err := tracing.InitOpenTelemetry("docwise"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	embedder := vectorindex.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	index, err := vectorindex.NewIndex(vectorindex.Config{
		DBPath:   cfg.Retrieval.DBPath,
		Logger:   log,
		Embedder: embedder,
	})
	if err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}
	defer index.Close()

	bindings := docsession.NewManager(docsession.ManagerConfig{
		MaxDocuments: cfg.Documents.MaxDocuments,
		Clearer:      index,
		Logger:       log,
	})

	sessions := conversation.NewStore(conversation.StoreConfig{
		MaxSessions: cfg.Sessions.MaxSessions,
		Logger:      log,
	})

	janitor, err := conversation.NewJanitor(conversation.JanitorConfig{
		Store:       sessions,
		MaxAgeHours: cfg.Sessions.MaxAgeHours,
		Schedule:    cfg.Sessions.CleanupSchedule,
		Logger:      log,
	})
	if err != nil {
		return fmt.Errorf("failed to create session janitor: %w", err)
	}
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("failed to start session janitor: %w", err)
	}
	defer janitor.Stop()

	retriever, err := pipeline.NewDocumentRetriever(pipeline.RetrieverConfig{
		Index:    index,
		Bindings: bindings,
		TopK:     cfg.Retrieval.TopK,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create retriever: %w", err)
	}

	pipe, err := pipeline.New(pipeline.Config{
		Provider:      provider,
		Retriever:     retriever,
		Model:         cfg.AI.Model,
		Temperature:   cfg.AI.Temperature,
		MaxTokens:     cfg.AI.MaxTokens,
		HistoryWindow: cfg.Sessions.HistoryWindow,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	service, err := qa.NewService(qa.ServiceConfig{
		Pipeline: pipe,
		Sessions: sessions,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create qa service: %w", err)
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Service:  service,
		Index:    index,
		Bindings: bindings,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	// Live log-level adjustment on config file edits.
	watcher, err := config.NewWatcher(configPath, func(updated *config.Config) {
		appLogger.SetLevel(updated.Logging.Level)
	}, log)
	if err != nil {
		log.Warn().Err(err).Msg("Config watcher unavailable")
	} else {
		defer watcher.Close()
	}

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	log.Info().
		Str("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Str("model", cfg.AI.Model).
		Int("max_documents", cfg.Documents.MaxDocuments).
		Msg("Docwise is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	return server.Stop()
}

// buildProvider picks the highest-priority auth profile with a key.
func buildProvider(cfg *config.Config) (llm.Provider, error) {
	profiles := make([]config.AIProfile, len(cfg.AI.Profiles))
	copy(profiles, cfg.AI.Profiles)
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Priority < profiles[j].Priority })

	factory := &llm.Factory{}
	for _, p := range profiles {
		if p.APIKey == "" {
			continue
		}
		provider, err := factory.NewProvider(llm.AuthProfile{
			ID:       p.ID,
			Provider: p.Provider,
			APIKey:   p.APIKey,
			Priority: p.Priority,
		})
		if err != nil {
			return nil, fmt.Errorf("invalid ai profile %q: %w", p.ID, err)
		}
		return provider, nil
	}
	return nil, fmt.Errorf("no usable ai profile configured")
}
