// Package cli wires the configuration and collaborators into the ragpipe
// command tree.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ragpipe/internal/answer"
	"ragpipe/internal/chunker"
	"ragpipe/internal/config"
	"ragpipe/internal/domain"
	embopenai "ragpipe/internal/embedding/openai"
	genopenai "ragpipe/internal/generation/openai"
	"ragpipe/internal/index/memory"
	"ragpipe/internal/index/qdrant"
	"ragpipe/internal/logger"
	"ragpipe/internal/pipeline"
	"ragpipe/internal/storage/fs"
)

var (
	cfgPath     string
	verboseFlag bool
	cfg         *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "ragpipe",
	Short: "Retrieval-augmented question answering over your documents",
	Long: `ragpipe chunks and embeds documents into a hybrid search index and
answers questions grounded in the retrieved chunks.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetVerbose(verboseFlag)
		var err error
		if cfgPath == "" {
			var path string
			cfg, path, err = config.LoadDefault()
			if err == nil {
				logger.Debug("config loaded from %s", path)
			}
		} else {
			cfg, err = config.Load(cfgPath)
		}
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default: ./config.yaml, then ~/.config/ragpipe/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under the given context, so
// cancelling it aborts in-flight pipeline calls.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// ephemeralIndexNotice returns a warning when the configured index lives
// only inside this process. Ingesting into it from the CLI is almost
// always a mistake: the next command starts from an empty index.
func ephemeralIndexNotice(cfg *config.AppConfig) string {
	if cfg.Index.Type != "memory" && cfg.Index.Type != "" {
		return ""
	}
	return `warning: index.type is "memory": the index lives only for this process, so documents ingested now are gone when the command exits. Configure a qdrant index to persist them.`
}

func warnIfEphemeral(cmd *cobra.Command) {
	if msg := ephemeralIndexNotice(cfg); msg != "" {
		cmd.PrintErrln(msg)
	}
}

// buildPipeline assembles the collaborators from config. storagePath may
// be empty for query-only commands, which never touch the document store.
func buildPipeline(storagePath string) (*pipeline.Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	embedder, err := embopenai.NewClient(embopenai.Config{
		BaseURL:        cfg.OpenAI.BaseURL,
		APIKeyEnv:      cfg.OpenAI.APIKeyEnv,
		Model:          cfg.OpenAI.EmbeddingModel,
		Timeout:        time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		BatchSize:      cfg.OpenAI.BatchSize,
		RequestsPerSec: cfg.Ingest.RequestsPerSec,
		Burst:          cfg.Ingest.RequestsBurst,
	})
	if err != nil {
		return nil, err
	}
	generator, err := genopenai.NewClient(genopenai.Config{
		BaseURL:     cfg.OpenAI.BaseURL,
		APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
		Model:       cfg.OpenAI.ChatModel,
		Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		Temperature: cfg.Query.Temperature,
		MaxTokens:   cfg.Query.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	var ix domain.Index
	switch cfg.Index.Type {
	case "memory", "":
		ix = memory.New()
	case "qdrant":
		if cfg.Index.Qdrant == nil {
			return nil, &domain.ConfigError{Key: "index.qdrant", Reason: "missing qdrant configuration"}
		}
		ix = qdrant.New(qdrant.Config{
			URL:        cfg.Index.Qdrant.URL,
			APIKeyEnv:  cfg.Index.Qdrant.APIKeyEnv,
			Collection: cfg.Index.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Index.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		return nil, &domain.ConfigError{Key: "index.type", Reason: "unknown index type " + cfg.Index.Type}
	}

	var store domain.Storage
	if storagePath != "" {
		store = fs.New(storagePath)
	}
	answerer := answer.New(generator, cfg.Query.MaxContextChars)
	ch := chunker.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	return pipeline.New(store, ch, embedder, ix, answerer, pipeline.Options{
		TopK:        cfg.Query.TopK,
		Concurrency: cfg.Ingest.Concurrency,
		MaxRetries:  cfg.Query.MaxRetries,
	}), nil
}
