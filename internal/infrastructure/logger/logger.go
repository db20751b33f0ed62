package logger

import (
	"time"

	"tracking-cog/internal/application/port/output"
	"tracking-cog/internal/domain/entity"
)

// StepLogger returns a logger carrying the correlation fields of one step
// invocation.
func StepLogger(log output.LoggerPort, req *entity.StepRequest) output.LoggerPort {
	fields := map[string]any{
		"step":       req.StepID,
		"request_id": req.RequestID,
	}
	if req.ScenarioID != "" {
		fields["scenario_id"] = req.ScenarioID
	}
	return log.WithFields(fields)
}

// LogStepResult writes the audit line for a finished step. ERROR outcomes
// are logged at error level with the rendered message.
func LogStepResult(log output.LoggerPort, resp *entity.StepResponse, start time.Time) {
	args := []any{
		"outcome", string(resp.Outcome),
		"duration_ms", time.Since(start).Milliseconds(),
		"records", len(resp.Records),
	}

	switch resp.Outcome {
	case entity.OutcomeError:
		log.Error("step errored", append(args, "message", resp.Message())...)
	case entity.OutcomeFailed:
		log.Info("step failed", append(args, "message", resp.Message())...)
	default:
		log.Info("step passed", args...)
	}
}
