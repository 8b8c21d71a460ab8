// =============================================================================
// agentstream 主入口
// =============================================================================
//
// 使用方法:
//
//	agentstream replay --input run.jsonl                 # 回放 agentflow 方言抓包
//	agentstream replay --config pipeline.yaml --dialect openai --input -
//	agentstream version                                  # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentstream/config"
)

// 版本信息（构建时注入）
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "replay":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := runReplayCommand(ctx, args[1:], stdout, stderr); err != nil {
			fmt.Fprintf(stderr, "replay: %v\n", err)
			return 1
		}
		return 0
	case "version":
		printVersion(stdout)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func runReplayCommand(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts replayOptions
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&opts.Input, "input", "-", "JSONL capture to replay, - for stdin")
	fs.StringVar(&opts.Dialect, "dialect", "", "Override stream.dialect (agentflow, openai, anthropic)")
	fs.StringVar(&opts.RunID, "run-id", "", "Run ID, generated when empty")
	fs.StringVar(&opts.Summary, "summary", "", "Write the run summary to this path instead of stderr")
	fs.StringVar(&opts.MetricsAddr, "metrics-addr", "", "Override metrics.addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	return runReplay(ctx, cfg, opts, stdout, stderr, logger)
}

func loadConfig(opts replayOptions) (*config.Config, error) {
	loader := config.NewLoader()
	if opts.ConfigPath != "" {
		loader = loader.WithConfigPath(opts.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.Dialect != "" {
		cfg.Stream.Dialect = opts.Dialect
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "agentstream %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `agentstream - output streaming pipeline for LLM agent runs

Usage:
  agentstream <command> [options]

Commands:
  replay    Replay a JSONL capture through the configured pipeline
  version   Show version information
  help      Show this help message

Options for 'replay':
  --config <path>        Path to configuration file (YAML)
  --input <path>         JSONL capture, - for stdin (default -)
  --dialect <name>       agentflow | openai | anthropic
  --run-id <id>          Run ID (generated when empty)
  --summary <path>       Write the JSON run summary to a file
  --metrics-addr <addr>  Serve /metrics and /healthz while replaying

Examples:
  agentstream replay --input capture.jsonl
  agentstream replay --config pipeline.yaml --dialect anthropic --input claude.jsonl
  agentstream version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
