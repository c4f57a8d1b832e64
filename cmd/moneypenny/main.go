// Moneypenny is a conversational expense tracker.
//
// It receives chat messages over a Telegram webhook or a small JSON
// API, plans each turn with an OpenAI-compatible model (or a
// deterministic rule table when no model is configured), and keeps the
// ledger in a PostgREST-compatible remote store. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	moneypenny serve             Start the webhook and API server
//	moneypenny ask <message>     Process a single message (for testing)
//	moneypenny version           Print version and build information
//	moneypenny -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/averko/moneypenny/internal/agent"
	"github.com/averko/moneypenny/internal/api"
	"github.com/averko/moneypenny/internal/buildinfo"
	"github.com/averko/moneypenny/internal/categorize"
	"github.com/averko/moneypenny/internal/config"
	"github.com/averko/moneypenny/internal/llm"
	"github.com/averko/moneypenny/internal/report"
	"github.com/averko/moneypenny/internal/store"
	"github.com/averko/moneypenny/internal/tools"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates immediately to [run]. This keeps os.Exit, os.Stdout, and
// os.Args out of the application logic so the full lifecycle can be
// driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible
// to call run() concurrently from tests, and the argument surface here
// is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
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
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
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
			return fmt.Errorf("usage: moneypenny ask <message>")
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

// runVersion prints build metadata in the requested output format.
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

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Moneypenny - Conversational Expense Tracker")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: moneypenny [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the webhook and API server")
	fmt.Fprintln(w, "  ask          Process a single message (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/moneypenny/config.yaml, /etc/moneypenny/config.yaml")
	return nil
}

// loadConfig discovers and loads the YAML config. A .env file in the
// working directory is folded into the environment first so ${VAR}
// references in the config resolve without exporting secrets by hand.
func loadConfig(explicit string) (*config.Config, string, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("loading .env: %w", err)
	}

	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, path, nil
}

// buildLoop assembles the full turn pipeline from configuration.
func buildLoop(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agent.Loop, *report.Reporter) {
	st := store.NewClient(cfg.Store.URL, cfg.Store.Key, logger)
	reporter := report.NewReporter(st, logger)

	var resolver agent.Resolver
	var classifier categorize.Classifier
	if cfg.Model.APIKey != "" {
		client := llm.NewOpenAIClient(cfg.Model.BaseURL, cfg.Model.APIKey, logger)

		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.Ping(pingCtx); err != nil {
			logger.Warn("model provider unreachable at startup", "error", err)
		}
		cancel()

		resolver = agent.NewModelResolver(client, cfg.Model.Name)
		classifier = categorize.NewModelClassifier(client, cfg.Model.Name, logger)
	} else {
		logger.Warn("no model API key configured, using rule-based resolution")
		resolver = agent.RuleResolver{}
		classifier = categorize.KeywordClassifier{}
	}

	registry := tools.NewRegistry(st, classifier, reporter, logger)
	return agent.NewLoop(st, registry, resolver, logger), reporter
}

// runAsk processes one message against the configured store and prints
// the reply. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, level)
	logger.Info("config loaded", "path", cfgPath)

	loop, _ := buildLoop(ctx, cfg, logger)
	reply := loop.ProcessMessage(ctx, 0, strings.Join(args, " "))
	fmt.Fprintln(stdout, reply)
	return nil
}

// runServe starts the webhook and API server and blocks until shutdown.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stdout, level)
	logger.Info(buildinfo.String())
	logger.Info("config loaded", "path", cfgPath)

	loop, reporter := buildLoop(ctx, cfg, logger)

	var bridge *api.TelegramBridge
	if cfg.Telegram.Token != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		logger.Info("telegram bot authorized", "username", bot.Self.UserName)
		bridge = api.NewTelegramBridge(bot, logger)
	} else {
		logger.Warn("no telegram token configured, webhook replies disabled")
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, reporter, bridge, cfg.Telegram.WebhookSecret, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("moneypenny stopped")
	return nil
}
