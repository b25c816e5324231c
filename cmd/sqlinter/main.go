package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/StepaOpa/SQLinter/internal/config"
	"github.com/StepaOpa/SQLinter/internal/docstore"
	"github.com/StepaOpa/SQLinter/internal/engine"
	"github.com/StepaOpa/SQLinter/internal/extractor"
	"github.com/StepaOpa/SQLinter/internal/logging"
)

var (
	configPath string
	logLevel   string
	logFile    string
	sourceName string
)

var rootCmd = &cobra.Command{
	Use:   "sqlinter",
	Short: "Find, judge and fix SQL queries embedded in source code",
	Long: `sqlinter extracts SQL string literals from Python and Go sources,
asks a verdict source (an OpenAI-compatible model, an external command or
the built-in rules) whether each query is correct, and applies the
suggested corrections in place.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to "+config.FileName+" (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this rotating file")
	rootCmd.PersistentFlags().StringVar(&sourceName, "source", "", "verdict source: openai, command or rules")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFindings) {
			fmt.Fprintln(os.Stderr, "sqlinter:", err)
		}
		stop()
		os.Exit(1)
	}
}

// app is the wiring shared by the analysing commands.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	docs   *docstore.Store
	engine *engine.Engine
	close  func()
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if sourceName != "" {
		cfg.Source = sourceName
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}

	log, flush, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		log.Debug("loaded configuration", zap.String("path", cfg.Path), zap.String("source", cfg.Source))
	}

	src, closeSource, err := cfg.NewSource(log)
	if err != nil {
		flush()
		return nil, err
	}

	docs := docstore.New()
	eng := engine.New(extractor.NewDefaultManager(), src, nil, docs, engine.Options{
		Timeout:       cfg.Timeout.Duration,
		HasCredential: cfg.HasCredential,
		AnalyzeOnSave: cfg.AnalyzeOnSave,
	}, log)

	return &app{
		cfg:    cfg,
		log:    log,
		docs:   docs,
		engine: eng,
		close: func() {
			if err := closeSource(); err != nil {
				log.Warn("close verdict source", zap.Error(err))
			}
			flush()
		},
	}, nil
}
