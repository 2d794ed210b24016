package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/atabot/internal/profile"
	"github.com/hrygo/atabot/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:   "atabot",
		Short: `A retrieval-augmented customer service chat server.`,
		Run: func(_ *cobra.Command, _ []string) {
			instanceProfile := &profile.Profile{
				Mode:                  viper.GetString("mode"),
				Addr:                  viper.GetString("addr"),
				Port:                  viper.GetInt("port"),
				Data:                  viper.GetString("data"),
				KnowledgeFile:         viper.GetString("knowledge-file"),
				BackupDir:             viper.GetString("backup-dir"),
				WatchKnowledge:        viper.GetBool("watch-knowledge"),
				Version:               version,
				LLMProvider:           viper.GetString("llm-provider"),
				LLMModel:              viper.GetString("llm-model"),
				LLMBaseURL:            viper.GetString("llm-base-url"),
				EmbeddingProvider:     viper.GetString("embedding-provider"),
				EmbeddingModel:        viper.GetString("embedding-model"),
				MaxContextTurns:       viper.GetInt("max-context-turns"),
				SimilarityThreshold:   viper.GetFloat64("similarity-threshold"),
				SessionIdleTTL:        viper.GetDuration("session-idle-ttl"),
				MaxConcurrentRequests: viper.GetInt("max-concurrent-requests"),
				RateLimitPerMinute:    viper.GetInt("rate-limit-per-minute"),
			}
			instanceProfile.FromEnv()
			setupLogger(instanceProfile)

			if err := instanceProfile.Validate(); err != nil {
				slog.Error("invalid configuration", "error", err)
				os.Exit(1)
			}

			ctx, cancel := context.WithCancel(context.Background())
			s, err := server.NewServer(ctx, instanceProfile)
			if err != nil {
				cancel()
				slog.Error("failed to create server", "error", err)
				return
			}

			c := make(chan os.Signal, 1)
			// Trigger graceful shutdown on SIGINT or SIGTERM.
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)

			if err := s.Start(ctx); err != nil {
				cancel()
				slog.Error("failed to start server", "error", err)
				return
			}

			printGreetings(instanceProfile)

			go func() {
				<-c
				s.Shutdown(ctx)
				cancel()
			}()

			// Wait for CTRL-C.
			<-ctx.Done()
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("addr", "")
	viper.SetDefault("port", 8000)
	viper.SetDefault("data", ".")
	viper.SetDefault("watch-knowledge", true)

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", 8000, "port of server")
	flags.String("data", ".", "data directory holding the knowledge file and backups")
	flags.String("knowledge-file", "", "knowledge document, JSON or YAML (default data.json)")
	flags.String("backup-dir", "", "directory for knowledge backups (default backups)")
	flags.Bool("watch-knowledge", true, "reload the knowledge document when the file changes")
	flags.String("llm-provider", "", "generation provider: poe, openai, deepseek or ollama")
	flags.String("llm-model", "", "generation model")
	flags.String("llm-base-url", "", "generation API base URL")
	flags.String("embedding-provider", "", "embedding provider: voyage, openai or siliconflow")
	flags.String("embedding-model", "", "embedding model")
	flags.Int("max-context-turns", 0, "history messages sent with each question (default 5)")
	flags.Float64("similarity-threshold", 0, "minimum cosine similarity for FAQ matches (default 0.7)")
	flags.Duration("session-idle-ttl", 0, "evict sessions idle for longer than this (default 24h)")
	flags.Int("max-concurrent-requests", 0, "chat requests admitted at once (default 100)")
	flags.Int("rate-limit-per-minute", 0, "chat requests per client per minute (default 20)")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("atabot")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Atabot %s started successfully!\n", p.Version)
	fmt.Printf("Knowledge: %s\n", p.KnowledgePath())
	if p.IsEmbeddingEnabled() {
		fmt.Printf("Embeddings: %s (%s)\n", p.EmbeddingProvider, p.EmbeddingModel)
	} else {
		fmt.Println("Embeddings: disabled, FAQ matching uses keywords")
	}
	fmt.Printf("Generation: %s (%s)\n", p.LLMProvider, p.LLMModel)
	fmt.Printf("Server running on port %d\n", p.Port)
	fmt.Printf("Visit http://localhost:%d/ for the API overview\n", p.Port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
