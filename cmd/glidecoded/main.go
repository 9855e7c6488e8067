package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"glidecode/bridge"
	"glidecode/common"
	"glidecode/llm2"
	"glidecode/orchestrator"
	"glidecode/procreg"
	"glidecode/secret_manager"
	"glidecode/session"
	"glidecode/toolexec"
)

// main wires every process-wide dependency and runs the bridge's HTTP
// server until SIGINT/SIGTERM, mirroring api/main/main.go's
// load-env/run/signal-wait/shutdown shape, with flags parsed the way
// cli/task_command.go uses urfave/cli/v3 rather than the stdlib flag
// package.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cmd := &cli.Command{
		Name:  "glidecoded",
		Usage: "Run the agentic coding assistant's HTTP/SSE server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Bind host; overrides SIDE_SERVER_HOST"},
			&cli.IntFlag{Name: "port", Usage: "Bind port; overrides SIDE_SERVER_PORT"},
			&cli.StringFlag{Name: "provider", Value: "anthropic", Usage: "Default model provider for new sessions"},
			&cli.StringFlag{Name: "flags-file", Value: "flags.yml", Usage: "Local feature flag definitions (used when GLIDE_APP_ENV=development)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("glidecoded exited with error")
	}
}

func run(cmd *cli.Command) error {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Msg("Error loading .env file")
		}
	}

	store, err := openSessionStore()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open session store")
	}

	registry := toolexec.NewRegistry()
	procs := procreg.New()
	registry.Register(&toolexec.ReadTool{})
	registry.Register(&toolexec.GlobTool{})
	registry.Register(&toolexec.GrepTool{})
	registry.Register(&toolexec.ShellTool{Procreg: procs})
	registry.Register(toolexec.AskUserQuestionTool{})
	registry.Register(toolexec.SetWorkModeTool{})
	registry.Register(toolexec.EnterPlanModeTool{})

	executor := toolexec.NewExecutor(registry)

	secrets := secret_manager.NewCompositeSecretManager([]secret_manager.SecretManager{
		secret_manager.EnvSecretManager{},
	})

	flags, err := orchestrator.NewFeatureFlags(cmd.String("flags-file"))
	if err != nil {
		log.Warn().Err(err).Msg("feature flags unavailable, using package defaults")
	}

	ctrl := bridge.NewController(store, registry, executor, defaultProvider(cmd), secrets, common.ModelConfig{
		Provider: cmd.String("provider"),
	}, flags)

	host := cmd.String("host")
	if host == "" {
		host = common.GetServerHost()
	}
	port := cmd.Int("port")
	if port == 0 {
		port = int64(common.GetServerPort())
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: bridge.DefineRoutes(ctrl).Handler(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("bridge server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	procs.KillAll()
	return srv.Shutdown(context.Background())
}

// defaultProvider picks the provider adapter used when a request doesn't
// resolve to anything more specific; provider selection by model/config is
// future work left to llm2's per-request ModelConfig.Provider field.
func defaultProvider(cmd *cli.Command) llm2.Provider {
	switch cmd.String("provider") {
	case "openai":
		return llm2.OpenAIProvider{}
	case "openai_responses":
		return llm2.OpenAIResponsesProvider{}
	case "google":
		return llm2.GoogleProvider{}
	case "openrouter":
		return llm2.OpenRouterProvider{}
	default:
		return llm2.AnthropicProvider{}
	}
}

func openSessionStore() (*session.SqliteStore, error) {
	dataHome, err := common.GetGlidecodeDataHome()
	if err != nil {
		return nil, err
	}
	return session.Open(filepath.Join(dataHome, "glidecode.sqlite3"))
}
