package system

import (
	"time"

	"github.com/l1jgo/tickseq/internal/core/ecs"
	coresys "github.com/l1jgo/tickseq/internal/core/system"
	"go.uber.org/zap"
)

// CleanupSystem flushes the deferred owner destruction queue at tick end.
// Sequences bound to a destroyed owner are cancelled here and pruned on the
// next tick. Phase 5 (Cleanup).
type CleanupSystem struct {
	world *ecs.World
	log   *zap.Logger
}

func NewCleanupSystem(world *ecs.World, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.world.FlushDestroyQueue(); n > 0 {
		s.log.Debug("owners destroyed", zap.Int("count", n))
	}
}
