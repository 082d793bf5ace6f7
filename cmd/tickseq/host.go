package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/config"
	"github.com/l1jgo/tickseq/internal/core/ecs"
	"github.com/l1jgo/tickseq/internal/core/event"
	coresys "github.com/l1jgo/tickseq/internal/core/system"
	"github.com/l1jgo/tickseq/internal/persist"
	"github.com/l1jgo/tickseq/internal/scripting"
	"github.com/l1jgo/tickseq/internal/sequence"
	"github.com/l1jgo/tickseq/internal/system"
	"github.com/l1jgo/tickseq/internal/timeline"
	"go.uber.org/zap"
)

// host owns one session: clocks, scheduler, owners, systems and the optional
// journal database.
type host struct {
	cfg       *config.Config
	log       *zap.Logger
	out       io.Writer
	session   *clock.Session
	sched     *sequence.Scheduler
	world     *ecs.World
	bus       *event.Bus
	runner    *coresys.Runner
	journal   *system.JournalSystem
	timelines *timeline.Runner
	engine    *scripting.Engine
	db        *persist.DB
}

func newHost(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) (*host, error) {
	h := &host{
		cfg:     cfg,
		log:     log,
		out:     out,
		session: clock.NewSession(),
		world:   ecs.NewWorld(),
		bus:     event.NewBus(),
		runner:  coresys.NewRunner(),
	}
	h.session.SetScale(cfg.Session.TimeScale)
	h.sched = sequence.New(sequence.Clocks{Session: h.session, Wall: clock.NewWall()}, log)
	h.world.Registry().Register(h.sched)

	// 1. Journal database
	var writer system.JournalWriter
	if cfg.Database.Enabled {
		printSection(out, "Database")
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		h.db = db
		printOK(out, "PostgreSQL connected")
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			h.close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		printOK(out, "migrations applied")
		writer = persist.NewJournalRepo(db)
		fmt.Fprintln(out)
	}

	// 2. Timelines and scripts
	printSection(out, "Content")
	if cfg.Timelines.Path != "" {
		table, err := timeline.LoadTable(cfg.Timelines.Path)
		if err != nil {
			h.close()
			return nil, fmt.Errorf("timelines: %w", err)
		}
		h.timelines = timeline.NewRunner(table, h.sched, nil, log)
		printStat(out, "timelines", table.Count())
	}
	if cfg.Scripting.Enabled {
		var opts []scripting.Option
		if h.timelines != nil {
			opts = append(opts, scripting.WithTimelines(h.timelines))
		}
		h.engine = scripting.NewEngine(h.sched, log, opts...)
	}

	// 3. Systems
	h.journal = system.NewJournalSystem(h.bus, writer, cfg.Session.Name, cfg.Journal, log)
	h.runner.Register(system.NewEventDispatchSystem(h.bus))
	h.runner.Register(system.NewSequenceSystem(h.sched, h.session, h.bus, log))
	h.runner.Register(h.journal)
	h.runner.Register(system.NewCleanupSystem(h.world, log))

	event.Subscribe(h.bus, func(ev event.ActiveCountChanged) {
		log.Debug("active sequences changed",
			zap.Uint64("frame", ev.Frame),
			zap.Int("prev", ev.Prev),
			zap.Int("cur", ev.Cur))
	})
	return h, nil
}

// start opens the session gate, then starts autostart timelines and runs the
// scripts, which may build sequences right away.
func (h *host) start() error {
	h.sched.Activate()

	if h.timelines != nil && len(h.cfg.Timelines.Autostart) > 0 {
		seqs, err := h.timelines.StartAll(h.cfg.Timelines.Autostart)
		if err != nil {
			return fmt.Errorf("autostart: %w", err)
		}
		printStat(h.out, "timelines started", len(seqs))
	}
	if h.engine != nil {
		n, err := h.engine.LoadDir(h.cfg.Scripting.Dir)
		if err != nil {
			return fmt.Errorf("scripts: %w", err)
		}
		printStat(h.out, "scripts", n)
	}
	printStat(h.out, "sequences", h.sched.Len())
	fmt.Fprintln(h.out)
	return nil
}

// loop ticks the runner at the configured rate and returns why it stopped.
func (h *host) loop(shutdownCh <-chan os.Signal, maxTicks uint64, untilIdle bool) string {
	ticker := time.NewTicker(h.cfg.Scheduler.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.runner.Tick(h.cfg.Scheduler.TickRate)
			if maxTicks > 0 && h.runner.Ticks() >= maxTicks {
				return "tick limit reached"
			}
			if untilIdle && h.sched.Len() == 0 {
				return "no sequences left"
			}
		case sig := <-shutdownCh:
			h.log.Info("shutdown signal received", zap.String("signal", sig.String()))
			return "signal " + sig.String()
		}
	}
}

// shutdown closes the scheduler, delivers the resulting events and flushes
// the journal one last time.
func (h *host) shutdown(ctx context.Context, reason string) {
	h.sched.Close(reason)
	h.runner.TickPhase(coresys.PhasePreUpdate, 0)
	if err := h.journal.Flush(ctx); err != nil {
		h.log.Error("final journal flush failed", zap.Int("pending", h.journal.Pending()), zap.Error(err))
	}
	h.log.Info("session stopped",
		zap.String("reason", reason),
		zap.Uint64("ticks", h.runner.Ticks()),
		zap.Uint64("frame", h.sched.Frame()))
}

func (h *host) close() {
	if h.engine != nil {
		h.engine.Close()
		h.engine = nil
	}
	if h.db != nil {
		h.db.Close()
		h.db = nil
	}
}
