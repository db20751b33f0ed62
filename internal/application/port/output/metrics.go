package output

import (
	"time"

	"tracking-cog/internal/domain/entity"
)

type MetricsPort interface {
	StepStarted(stepID string)
	StepFinished(stepID string, outcome entity.Outcome, elapsed time.Duration)
	StreamOpened()
	StreamClosed()
	PoolUsage(inUse, idle int)
	PoolWait(elapsed time.Duration)
}
