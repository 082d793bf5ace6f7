package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/l1jgo/tickseq/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(w io.Writer, session string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Fprintf(w, "\033[36;1m  │\033[0m              tickseq  v%s              \033[36;1m│\033[0m\n", version)
	fmt.Fprintln(w, "\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  \033[1msession:\033[0m %s\n\n", session)
}

func printSection(w io.Writer, title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Fprintf(w, "  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(w io.Writer, label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Fprintf(w, "  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
}

func printReady(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[32m▶\033[0m %s\n", msg)
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
