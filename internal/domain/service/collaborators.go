package service

import "SmartFlow/internal/domain/models"

// OutcomeRecorder receives closed-attempt outcomes. Record must not block.
type OutcomeRecorder interface {
	Record(o models.PatternOutcome)
}
