// Command opsassist is the CLI for the PSI accelerator operations
// assistant.
//
// Usage:
//
//	opsassist ask --config config.yaml "beam dump events last week"
//	opsassist tools --config config.yaml
//	opsassist validate --config config.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/psi-gfa/opsassist/agent"
	"github.com/psi-gfa/opsassist/config"
	"github.com/psi-gfa/opsassist/elog"
	"github.com/psi-gfa/opsassist/kgraph"
	"github.com/psi-gfa/opsassist/llms"
	"github.com/psi-gfa/opsassist/logger"
	"github.com/psi-gfa/opsassist/rerank"
	"github.com/psi-gfa/opsassist/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Ask      AskCmd      `cmd:"" help:"Ask the assistant one question."`
	Tools    ToolsCmd    `cmd:"" help:"List the tools available to the agent."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("opsassist version %s\n", version)
	return nil
}

// AskCmd runs one question through the agent and streams the answer.
type AskCmd struct {
	Query   []string `arg:"" help:"The question to ask."`
	NoTools bool     `help:"Answer from the model alone, without tool calls."`
}

func (c *AskCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	if c.NoTools {
		disabled := false
		cfg.Session.ToolsEnabled = &disabled
	}

	provider, err := llms.NewOllamaProvider(&cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	assistant := agent.New(provider, registry, cfg.Session)
	events := assistant.Run(ctx, agent.Turn{Query: strings.Join(c.Query, " ")})

	streaming := false
	for event := range events {
		switch event.Type {
		case agent.EventToken:
			streaming = true
			fmt.Print(event.Text)
		case agent.EventStepStarted:
			slog.Debug("step started", "step", event.Step)
		case agent.EventStepFinished:
			slog.Debug("step finished", "step", event.Step, "summary", event.Text)
		case agent.EventClarification:
			fmt.Println(event.Text)
		case agent.EventCanceled:
			if streaming {
				fmt.Println()
			}
			fmt.Fprintln(os.Stderr, "Canceled.")
			return nil
		case agent.EventError:
			if streaming {
				fmt.Println()
			}
			return fmt.Errorf("turn failed: %w", event.Err)
		}
	}
	if streaming {
		fmt.Println()
	}
	return nil
}

// ToolsCmd lists every tool the configured sources advertise.
type ToolsCmd struct{}

func (c *ToolsCmd) Run(cli *CLI) error {
	ctx := context.Background()

	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	infos := registry.List()
	if len(infos) == 0 {
		fmt.Println("No tools registered.")
		return nil
	}

	fmt.Printf("Available tools (%d):\n", len(infos))
	for _, info := range infos {
		fmt.Printf("  - %s (%s)\n", info.Name, info.ServerName)
		if info.Description != "" {
			fmt.Printf("      %s\n", info.Description)
		}
	}
	return nil
}

// ValidateCmd checks the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if _, err := loadConfig(cli.Config); err != nil {
		return err
	}
	fmt.Println("Configuration is valid.")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, nil
}

// buildRegistry assembles the tool registry: the builtin retrieval tools
// plus every configured remote tool server. A remote server that fails
// discovery is skipped with a warning so the rest stay usable.
func buildRegistry(ctx context.Context, cfg *config.Config) (*tools.Registry, error) {
	registry := tools.NewRegistry()

	builtin := tools.NewLocalSource("builtin")
	service := elog.NewService(elog.NewLogbook(cfg.ELOG), rerank.New(cfg.Rerank))
	if err := builtin.Register(tools.NewELOGSearchTool(service)); err != nil {
		return nil, err
	}
	if err := builtin.Register(tools.NewELOGThreadTool(service)); err != nil {
		return nil, err
	}
	if cfg.Graph.URL != "" {
		graph := kgraph.NewClient(cfg.Graph)
		if err := builtin.Register(tools.NewKnowledgeSearchTool(graph)); err != nil {
			return nil, err
		}
		if err := builtin.Register(tools.NewRelatedArticlesTool(graph)); err != nil {
			return nil, err
		}
	}
	if err := registry.RegisterSource(ctx, builtin); err != nil {
		return nil, fmt.Errorf("failed to register builtin tools: %w", err)
	}

	for _, server := range cfg.ToolServers {
		var source tools.Source
		switch server.Transport {
		case "stdio":
			source = tools.NewStdioSource(server.Name, server.Command, server.Args, os.Environ())
		default:
			source = tools.NewHTTPSource(server.Name, server.URL)
		}
		if err := registry.RegisterSource(ctx, source); err != nil {
			slog.Warn("tool server unavailable, skipping", "server", server.Name, "error", err)
		}
	}
	return registry, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("opsassist"),
		kong.Description("opsassist - retrieval-augmented assistant for PSI accelerator operations"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		file, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = file
	}
	logger.Init(level, output, cli.LogFormat)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
