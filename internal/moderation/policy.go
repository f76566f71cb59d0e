package moderation

import (
	"github.com/unibazzar/ai-service/internal/database/types/enum"
	"github.com/unibazzar/ai-service/internal/setup/config"
)

// severityFor maps the maximum category confidence to a severity level using
// the policy bands for the content type. Severity never decreases as
// confidence grows.
func severityFor(bands config.PolicyBands, confidence float64) enum.Severity {
	switch {
	case confidence >= bands.High:
		return enum.SeverityHigh
	case confidence >= bands.Medium:
		return enum.SeverityMedium
	case confidence >= bands.Flag:
		return enum.SeverityLow
	default:
		return enum.SeverityNone
	}
}

// actionFor maps a severity level to the recommended action.
func actionFor(severity enum.Severity) enum.Action {
	switch severity {
	case enum.SeverityHigh:
		return enum.ActionBlock
	case enum.SeverityMedium:
		return enum.ActionHide
	case enum.SeverityLow:
		return enum.ActionWarn
	default:
		return enum.ActionAllow
	}
}
