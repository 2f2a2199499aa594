package cmd

import (
	"time"

	"github.com/reelforge/reelforge/internal/core"
)

// timeRound trims durations for human-facing output.
const timeRound = 100 * time.Millisecond

func corePhase(name string) core.Phase {
	return core.Phase(name)
}
