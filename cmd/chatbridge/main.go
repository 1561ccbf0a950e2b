// Chatbridge bridges a WeChat account to an OpenAI-compatible LLM
// backend, with pluggable tools for web search, URL/PDF reading, chat
// history digestion, and news.
//
// Usage:
//
//	chatbridge serve             Connect to the sidecar and run the bot
//	chatbridge ask <question>    Ask a single question (for testing)
//	chatbridge version           Print version and build information
//	chatbridge -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/qunqin/chatbridge/internal/agent"
	"github.com/qunqin/chatbridge/internal/buildinfo"
	"github.com/qunqin/chatbridge/internal/config"
	"github.com/qunqin/chatbridge/internal/fetch"
	"github.com/qunqin/chatbridge/internal/history"
	"github.com/qunqin/chatbridge/internal/llm"
	"github.com/qunqin/chatbridge/internal/prompts"
	"github.com/qunqin/chatbridge/internal/search"
	"github.com/qunqin/chatbridge/internal/state"
	"github.com/qunqin/chatbridge/internal/tools"
	"github.com/qunqin/chatbridge/internal/wechat"
)

// main constructs the OS-level environment and delegates to run, which
// keeps os.Exit and os.Args out of the application logic.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run parses arguments by hand — the flag package's package-level state
// gets in the way of calling run concurrently from tests, and the
// argument surface here is tiny.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: chatbridge ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "chatbridge - WeChat LLM bot gateway")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: chatbridge [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Connect to the WeChat sidecar and run the bot")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// newLogger standardizes slog handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// openStateStore selects the persistence backend from configuration.
func openStateStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case "", "file":
		return state.NewFileStore(cfg.DataDir)
	case "sqlite":
		path := cfg.State.Path
		if path == "" {
			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			path = filepath.Join(cfg.DataDir, "state.db")
		}
		return state.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q (expected file or sqlite)", cfg.State.Backend)
	}
}

// buildEngine wires the conversation engine from configuration. The
// returned worker is started by the caller; store closing is also the
// caller's responsibility.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*agent.Orchestrator, *history.Store, state.Store, error) {
	st, err := openStateStore(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open state store: %w", err)
	}

	pm := prompts.NewManager(cfg.PromptsDir, st, cfg.History.Timeout(), logger)
	hist := history.NewStore(st, cfg.History.MaxMessages(), cfg.History.Timeout(), cfg.History.ArchiveExpiration(), logger)

	client := llm.NewOpenAIClient(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, logger)

	searchMgr := search.NewManager("searxng")
	if cfg.Search.URL != "" {
		searchMgr.Register(search.NewSearXNG(cfg.Search.URL))
	}
	fetcher := fetch.New(buildinfo.UserAgent())
	contextBuilder := history.NewContextBuilder(hist, client, cfg.OpenAI.Model, logger)

	registry := tools.NewRegistry(logger)
	tools.RegisterBuiltins(registry, cfg.Features, tools.Backends{
		Search:  searchMgr,
		Fetcher: fetcher,
		History: contextBuilder,
		NewsURL: cfg.News.Endpoint(),
	})
	logger.Info("tools registered", "tools", registry.Names())

	orch := agent.New(client, cfg.OpenAI.Model, pm, hist, registry, logger)
	return orch, hist, st, nil
}

// runAsk boots a throwaway engine (temp state dir, no sidecar) and runs
// one conversation turn. Useful for smoke-testing a config.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Nothing from a one-shot question should persist.
	tmpDir, err := os.MkdirTemp("", "chatbridge-ask-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)
	cfg.DataDir = tmpDir
	cfg.State.Backend = "file"

	orch, _, st, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	reply := orch.HandleMessage(ctx, agent.Request{
		ConversationID: "cli",
		Text:           strings.Join(args, " "),
	})
	fmt.Fprintln(stdout, reply)
	return nil
}

// runServe is the long-running mode: conversation engine plus the
// sidecar connection, with graceful shutdown on SIGINT/SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info(buildinfo.String())
	logger.Info("config loaded", "path", cfgPath)

	orch, hist, st, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	worker := history.NewWorker(hist, logger)
	worker.Start(ctx)
	defer worker.Stop()

	if cfg.WeChat.URL == "" {
		return fmt.Errorf("wechat.url is required for serve")
	}

	client := wechat.NewClient(cfg.WeChat.URL, cfg.WeChat.Retries(), cfg.WeChat.RetryDelay(), logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	client.Start(ctx)

	qrPath := filepath.Join(cfg.DataDir, "login_qr.png")
	bridge := wechat.NewBridge(client, orch, hist, cfg.WeChat.BotName, qrPath, logger)
	bridge.Run(ctx, client.Events())

	logger.Info("chatbridge stopped")
	return nil
}
