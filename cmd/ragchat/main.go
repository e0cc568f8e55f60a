// Command ragchat is a conversational assistant that can answer from a
// local document index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragchat/internal/config"
	"ragchat/internal/logger"
	"ragchat/internal/service"
)

var (
	cfgPath string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "ragchat",
	Short:         "Chat with an LLM, optionally grounded in your documents",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (.yaml or .toml); defaults to ./config.yaml or ~/.config/ragchat/config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every subcommand needs.
type app struct {
	cfg    *config.AppConfig
	bot    *service.Bot
	logger *slog.Logger
	// close releases the log file, if any.
	close func() error
}

// bootstrap loads .env and the config file, then wires the bot. Interactive
// sessions log to a file unless log.file names one already. When the config
// asks for it, a previously saved index is imported.
func bootstrap(ctx context.Context, interactive bool) (*app, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	logOut, closer, err := logger.Open(cfg.Log, interactive)
	if err != nil {
		return nil, err
	}
	lg := logger.New(cfg.Log, logOut)
	slog.SetDefault(lg)

	bot, err := service.FromConfig(cfg, lg)
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("build bot: %w", err)
	}
	if cfg.Index.LoadOnStart {
		n, err := bot.ImportIndex(ctx, cfg.Index.Dir, "")
		switch {
		case errors.Is(err, os.ErrNotExist):
			lg.Info("no saved index to load", "dir", cfg.Index.Dir)
		case err != nil:
			lg.Warn("could not load saved index", "dir", cfg.Index.Dir, "error", err)
		default:
			lg.Info("loaded saved index", "dir", cfg.Index.Dir, "chunks", n)
		}
	}
	return &app{cfg: cfg, bot: bot, logger: lg, close: closer.Close}, nil
}
