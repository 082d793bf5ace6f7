package system

import (
	"context"
	"time"

	"github.com/l1jgo/tickseq/internal/config"
	"github.com/l1jgo/tickseq/internal/core/event"
	coresys "github.com/l1jgo/tickseq/internal/core/system"
	"github.com/l1jgo/tickseq/internal/persist"
	"go.uber.org/zap"
)

const journalWriteTimeout = 5 * time.Second

// JournalWriter stores a batch of finished sequences. *persist.JournalRepo
// implements it.
type JournalWriter interface {
	WriteBatch(ctx context.Context, entries []persist.JournalEntry) error
}

// JournalSystem buffers SequenceFinished events and writes them every
// FlushInterval ticks. A failed write keeps the batch for the next flush, up
// to BatchLimit entries (oldest dropped first). With a nil writer entries are
// only logged. Phase 4 (Persist).
type JournalSystem struct {
	writer    JournalWriter
	session   string
	interval  int
	limit     int
	pending   []persist.JournalEntry
	dropped   int
	tickCount int
	log       *zap.Logger
}

func NewJournalSystem(bus *event.Bus, writer JournalWriter, session string, cfg config.JournalConfig, log *zap.Logger) *JournalSystem {
	s := &JournalSystem{
		writer:   writer,
		session:  session,
		interval: max(cfg.FlushInterval, 1),
		limit:    cfg.BatchLimit,
		log:      log,
	}
	event.Subscribe(bus, s.record)
	return s
}

func (s *JournalSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *JournalSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	_ = s.Flush(context.Background())
}

// Pending returns how many entries are waiting for the next flush.
func (s *JournalSystem) Pending() int { return len(s.pending) }

// Dropped returns how many entries were discarded over the batch limit.
func (s *JournalSystem) Dropped() int { return s.dropped }

func (s *JournalSystem) record(ev event.SequenceFinished) {
	if s.writer == nil {
		s.log.Debug("sequence finished",
			zap.String("sequence", ev.Name),
			zap.String("outcome", string(ev.Outcome)),
			zap.String("reason", ev.Reason),
			zap.Uint64("frame", ev.EndFrame))
		return
	}
	s.pending = append(s.pending, persist.JournalEntry{
		Session:    s.session,
		SequenceID: ev.ID,
		Name:       ev.Name,
		Owner:      ev.Owner,
		Outcome:    string(ev.Outcome),
		Reason:     ev.Reason,
		Steps:      ev.Steps,
		StartFrame: ev.StartFrame,
		EndFrame:   ev.EndFrame,
	})
}

// Flush writes the buffered entries now. Called by Update on the interval
// and by the host at shutdown.
func (s *JournalSystem) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, journalWriteTimeout)
	defer cancel()

	if err := s.writer.WriteBatch(ctx, s.pending); err != nil {
		s.log.Error("journal flush failed",
			zap.Int("pending", len(s.pending)),
			zap.Error(err))
		s.trim()
		return err
	}
	s.log.Debug("journal flushed", zap.Int("entries", len(s.pending)))
	s.pending = s.pending[:0]
	return nil
}

func (s *JournalSystem) trim() {
	if s.limit <= 0 || len(s.pending) <= s.limit {
		return
	}
	over := len(s.pending) - s.limit
	s.pending = append(s.pending[:0], s.pending[over:]...)
	s.dropped += over
	s.log.Warn("journal backlog trimmed",
		zap.Int("dropped", over),
		zap.Int("kept", len(s.pending)))
}
