package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/paperchat/cli/config"
	"github.com/paperchat/cli/internal/db"
	"github.com/paperchat/cli/internal/documents"
	"github.com/paperchat/cli/internal/embeddings"
	"github.com/paperchat/cli/internal/llm"
	"github.com/paperchat/cli/internal/ollama"
	"github.com/paperchat/cli/internal/rag"
	"github.com/paperchat/cli/internal/rerank"
	"github.com/paperchat/cli/internal/tui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:          "paperchat",
		Short:        "Chat with your documents using retrieval-augmented generation",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newInitCmd())
	root.AddCommand(newIngestCmd(&configPath, &debug))
	root.AddCommand(newChatCmd(&configPath, &debug))
	root.AddCommand(newStatusCmd(&configPath, &debug))
	return root
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to ~/.paperchat/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(os.Getenv("HOME"), ".paperchat", "config.yaml")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Default().Save(); err != nil {
				return err
			}
			fmt.Println("Wrote", path)
			return nil
		},
	}
}

func newIngestCmd(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Ingest all supported documents from a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(*debug, "")
			if err != nil {
				return err
			}
			defer logger.Sync()

			dir := cfg.Paths.UploadDir
			if len(args) == 1 {
				dir = args[0]
			}

			// The id strategy is checked before any document is touched.
			idgen, err := documents.NewIDGenerator(cfg.Processing.IDStrategy)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			database, err := db.New(ctx, cfg.Database.ConnectionString)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.EnsureSchema(ctx, cfg.Embeddings.Dimension); err != nil {
				return err
			}
			// The store enforces vector width and dimension against what
			// the database holds, before any document is embedded.
			store, err := db.NewStore(ctx, database, cfg.Embeddings.Dimension, cfg.Embeddings.Bits, logger)
			if err != nil {
				return err
			}

			registry := db.NewRegistry(database, logger)
			segmenter := documents.NewFileSegmenter(cfg, logger)
			batcher := embeddings.NewBatcher(newEmbeddingProvider(cfg), cfg, logger)
			pipeline := documents.NewPipeline(segmenter, batcher, registry, store, idgen,
				cfg.Paths.ProcessedDir, cfg.Documents.SupportedFormats, logger)

			summary, err := pipeline.IngestDirectory(ctx, dir)
			if err != nil {
				return err
			}
			printSummary(summary)
			return nil
		},
	}
}

func newChatCmd(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat over the ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			// The TUI owns the terminal, so logs go to a file.
			logger, err := newLogger(*debug, cfg.Paths.LogFile)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			database, err := db.New(ctx, cfg.Database.ConnectionString)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.EnsureSchema(ctx, cfg.Embeddings.Dimension); err != nil {
				return err
			}
			store, err := db.NewStore(ctx, database, cfg.Embeddings.Dimension, cfg.Embeddings.Bits, logger)
			if err != nil {
				return err
			}

			batcher := embeddings.NewBatcher(newEmbeddingProvider(cfg), cfg, logger)

			var reranker rag.Reranker
			if cfg.Reranker.Enabled {
				reranker = rerank.NewClient(cfg.Reranker.Endpoint, cfg.Reranker.APIKey, cfg.Reranker.Model)
			}

			retriever := rag.NewRetriever(store, batcher, reranker, nil, logger)
			prompts := rag.NewPromptBuilder(cfg.Chat.MemoryTokenLimit)
			session := rag.NewSession(retriever, newGenerator(cfg),
				prompts, cfg.Generation.SystemPrompt, cfg.Chat.MemoryTokenLimit, logger)

			opts := rag.Options{
				TopK:                cfg.Retrieval.TopK,
				TopN:                cfg.Retrieval.TopN,
				SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
				Approximate:         cfg.Retrieval.Approximate,
			}

			program := tea.NewProgram(tui.New(session, opts, cfg.Generation.Stream), tea.WithAltScreen())
			_, err = program.Run()
			return err
		},
	}
}

func newStatusCmd(configPath *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ingested documents, chunk count and available models",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger, err := newLogger(*debug, "")
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			database, err := db.New(ctx, cfg.Database.ConnectionString)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := database.EnsureSchema(ctx, cfg.Embeddings.Dimension); err != nil {
				return err
			}

			registry := db.NewRegistry(database, logger)
			docs, err := registry.ListDocuments(ctx)
			if err != nil {
				return err
			}
			store, err := db.NewStore(ctx, database, cfg.Embeddings.Dimension, cfg.Embeddings.Bits, logger)
			if err != nil {
				return err
			}
			chunks, err := store.CountChunks(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Documents: %d\n", len(docs))
			for _, doc := range docs {
				fmt.Printf("  %3d  %s\n", doc.ID, doc.Name)
			}
			fmt.Printf("Chunks: %d\n", chunks)

			if cfg.Generation.Provider == config.ProviderOllama {
				models, err := ollama.NewClient(cfg.Ollama.BaseURL).ListModels(ctx)
				if err != nil {
					fmt.Printf("Ollama models: unavailable (%v)\n", err)
					return nil
				}
				fmt.Printf("Ollama models: %d\n", len(models))
				for _, m := range models {
					fmt.Printf("  %s\n", m.Name)
				}
			}
			return nil
		},
	}
}

// newEmbeddingProvider selects the embedding backend. Config validation
// already rejected unknown providers.
func newEmbeddingProvider(cfg *config.Config) embeddings.Provider {
	if cfg.Embeddings.Provider == config.ProviderOpenAI {
		return embeddings.NewOpenAIProvider(cfg.Embeddings.Model)
	}
	return embeddings.NewOllamaProvider(ollama.NewClient(cfg.Ollama.BaseURL), cfg.Embeddings.Model)
}

// newGenerator selects the generation backend.
func newGenerator(cfg *config.Config) llm.Generator {
	if cfg.Generation.Provider == config.ProviderOpenAI {
		return llm.NewOpenAIGenerator(cfg.Generation.DefaultModel, cfg.Generation.MaxTokens, cfg.Generation.Temperature)
	}
	return llm.NewOllamaGenerator(ollama.NewClient(cfg.Ollama.BaseURL),
		cfg.Generation.DefaultModel, cfg.Generation.MaxTokens, cfg.Generation.Temperature)
}

func newLogger(debug bool, logFile string) (*zap.Logger, error) {
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg := zap.NewProductionConfig()
		if debug {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
		return cfg.Build()
	}
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func printSummary(summary *documents.Summary) {
	if summary.Attempted == 0 {
		fmt.Println("No files to process.")
		return
	}
	for _, r := range summary.Results {
		switch r.Status {
		case documents.StatusDone:
			fmt.Printf("  done     %-40s %4d chunks, %d row errors, %s\n", r.Name, r.Chunks, r.Errors, r.Elapsed.Round(time.Millisecond))
		case documents.StatusSkipped:
			fmt.Printf("  skipped  %-40s %s\n", r.Name, r.Reason)
		case documents.StatusFailed:
			fmt.Printf("  failed   %-40s %s\n", r.Name, r.Reason)
		}
	}
	fmt.Printf("Attempted %d: %d succeeded, %d skipped, %d failed, %d chunks total\n",
		summary.Attempted, summary.Succeeded, summary.Skipped, summary.Errored, summary.TotalChunks)
}
