package moderation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/setup/config"
)

func TestSeverityMonotoneInConfidence(t *testing.T) {
	t.Parallel()

	bands := config.PolicyBands{Flag: 0.50, Medium: 0.70, High: 0.85}

	previous := enum.SeverityNone
	for confidence := 0.0; confidence <= 1.0; confidence += 0.01 {
		severity := severityFor(bands, confidence)
		assert.GreaterOrEqual(t, severity, previous, "confidence %f", confidence)
		previous = severity
	}

	assert.Equal(t, enum.SeverityNone, severityFor(bands, 0.49))
	assert.Equal(t, enum.SeverityLow, severityFor(bands, 0.50))
	assert.Equal(t, enum.SeverityMedium, severityFor(bands, 0.70))
	assert.Equal(t, enum.SeverityHigh, severityFor(bands, 0.85))
}

func TestActionTracksSeverity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, enum.ActionAllow, actionFor(enum.SeverityNone))
	assert.Equal(t, enum.ActionWarn, actionFor(enum.SeverityLow))
	assert.Equal(t, enum.ActionHide, actionFor(enum.SeverityMedium))
	assert.Equal(t, enum.ActionBlock, actionFor(enum.SeverityHigh))

	// A stricter severity never maps to a weaker action
	previous := actionFor(enum.SeverityNone)
	for severity := enum.SeverityLow; severity <= enum.SeverityHigh; severity++ {
		action := actionFor(severity)
		assert.GreaterOrEqual(t, action, previous)
		previous = action
	}
}
