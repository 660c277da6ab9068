// Package cli implements the memory-pipeline CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/config"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/pipeline"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/store"
)

var (
	dbPath     string
	configPath string
	userID     string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "memory-pipeline",
	Short: "Memory write pipeline for a personal assistant",
	Long: "Decide what to remember from a conversation, persist it in the background, " +
		"and keep an audited history of every change. SQLite-backed, optional Redis counters.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (overrides db.path)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	RootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User id (default: $MEMORY_PIPELINE_USER or \"local\")")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}
	return cfg, nil
}

func getUser() string {
	if userID != "" {
		return userID
	}
	if env := os.Getenv(config.DefaultEnvPrefix + "_USER"); env != "" {
		return env
	}
	return "local"
}

// newLogger builds the process logger from cfg.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
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
	if cfg.Format == "console" {
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
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	return zapConfig.Build()
}

// openService builds the pipeline. The caller must call shutdown.
func openService(ctx context.Context) (*pipeline.Service, *zap.Logger) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		exitErr("init logger", err)
	}
	svc, err := pipeline.New(ctx, cfg, pipeline.WithLogger(logger))
	if err != nil {
		exitErr("start pipeline", err)
	}
	return svc, logger
}

// shutdown drains background work and reports how many tasks were abandoned.
func shutdown(svc *pipeline.Service, logger *zap.Logger) int {
	abandoned, err := svc.Shutdown(context.Background())
	if err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
	logger.Sync()
	return abandoned
}

func openStore() (*store.SQLiteStore, string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	s, err := store.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		exitErr("open store", err)
	}
	return s, cfg.DB.Path
}

// readContent returns the positional args joined, or stdin when piped.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.Join(args, " ")
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return string(b)
	}
	return ""
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
