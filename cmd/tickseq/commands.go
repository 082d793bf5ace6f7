package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/config"
	"github.com/l1jgo/tickseq/internal/persist"
	"github.com/l1jgo/tickseq/internal/scripting"
	"github.com/l1jgo/tickseq/internal/sequence"
	"github.com/l1jgo/tickseq/internal/timeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "config/tickseq.toml"
	configEnv         = "TICKSEQ_CONFIG"
	startupTimeout    = 30 * time.Second
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

// configPath resolves --config, then TICKSEQ_CONFIG, then the default.
func (o *rootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tickseq",
		Short:         "Tick-driven sequence host",
		Long:          "Runs scripted and declarative step sequences on a fixed-rate tick loop.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "",
		"config file (default $"+configEnv+" or "+defaultConfigPath+")")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCheckCommand(opts))
	return cmd
}

type runOptions struct {
	Ticks     uint64
	UntilIdle bool
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the session and tick until signalled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			if cmd.Flags().Changed("ticks") {
				cfg.Scheduler.MaxTicks = opts.Ticks
			}
			return runHost(cmd, cfg, log, opts.UntilIdle)
		},
	}
	cmd.Flags().Uint64Var(&opts.Ticks, "ticks", 0, "stop after N ticks (0 = run until signalled)")
	cmd.Flags().BoolVar(&opts.UntilIdle, "until-idle", false, "stop once no sequence is left")
	return cmd
}

func runHost(cmd *cobra.Command, cfg *config.Config, log *zap.Logger, untilIdle bool) error {
	out := cmd.OutOrStdout()
	printBanner(out, cfg.Session.Name)

	ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
	defer cancel()
	h, err := newHost(ctx, cfg, log, out)
	if err != nil {
		return err
	}
	defer h.close()

	if err := h.start(); err != nil {
		return err
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownCh)

	printSection(out, "Ready")
	printReady(out, fmt.Sprintf("tick loop started (tick: %s)", cfg.Scheduler.TickRate))
	fmt.Fprintln(out)

	reason := h.loop(shutdownCh, cfg.Scheduler.MaxTicks, untilIdle)
	h.shutdown(context.Background(), reason)
	return nil
}

func newCheckCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate config, timelines and scripts without ticking",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			return runCheck(cmd, cfg, log)
		},
	}
}

// runCheck loads everything a session would load. Scripts run against a
// throwaway scheduler that is never ticked.
func runCheck(cmd *cobra.Command, cfg *config.Config, log *zap.Logger) error {
	out := cmd.OutOrStdout()
	printOK(out, "config "+cfg.Session.Name)

	sched := sequence.New(sequence.Clocks{Session: clock.NewManual(), Wall: clock.NewManual()}, log)
	sched.Activate()

	// Closing the scheduler runs on_cancel handlers, so it must happen while
	// the Lua VM is still open.
	var engine *scripting.Engine
	defer func() {
		sched.Close("check finished")
		if engine != nil {
			engine.Close()
		}
	}()

	var tl *timeline.Runner
	if cfg.Timelines.Path != "" {
		table, err := timeline.LoadTable(cfg.Timelines.Path)
		if err != nil {
			return fmt.Errorf("timelines: %w", err)
		}
		for _, name := range cfg.Timelines.Autostart {
			if table.Get(name) == nil {
				return fmt.Errorf("timelines: autostart %q is not defined", name)
			}
		}
		tl = timeline.NewRunner(table, sched, nil, log)
		printStat(out, "timelines", table.Count())
	}

	if cfg.Scripting.Enabled {
		var engineOpts []scripting.Option
		if tl != nil {
			engineOpts = append(engineOpts, scripting.WithTimelines(tl))
		}
		engine = scripting.NewEngine(sched, log, engineOpts...)
		n, err := engine.LoadDir(cfg.Scripting.Dir)
		if err != nil {
			return fmt.Errorf("scripts: %w", err)
		}
		printStat(out, "scripts", n)
		printStat(out, "sequences built", sched.Len())
	}

	if cfg.Database.Enabled {
		ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
		defer cancel()
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		v, err := persist.SchemaVersion(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		printStat(out, "journal schema version", int(v))
	}

	printOK(out, "check passed")
	return nil
}
