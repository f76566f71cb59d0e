package enum

import "fmt"

// Category is a moderation category a classifier can flag content for.
type Category int

const (
	CategoryHateSpeech Category = iota
	CategorySpam
	CategoryPolicyViolation
	CategoryHarassment
)

// String returns the wire name of the category.
func (c Category) String() string {
	switch c {
	case CategoryHateSpeech:
		return "hate_speech"
	case CategorySpam:
		return "spam"
	case CategoryPolicyViolation:
		return "policy_violation"
	case CategoryHarassment:
		return "harassment"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Severity is the ordinal severity level of a moderation verdict.
// Higher values always map to an action at least as strict.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

// String returns the wire name of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Action is the recommended moderation action for a verdict.
type Action int

const (
	ActionAllow Action = iota
	ActionWarn
	ActionHide
	ActionBlock
)

// String returns the wire name of the action.
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionWarn:
		return "warn"
	case ActionHide:
		return "hide"
	case ActionBlock:
		return "block"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}
