package enum

import "fmt"

// InteractionType classifies a user action against a listing.
// The interaction log is the training input for the collaborative model,
// so only recognized types are accepted.
type InteractionType int

const (
	InteractionTypeView InteractionType = iota
	InteractionTypeClick
	InteractionTypeFavorite
	InteractionTypeMessage
	InteractionTypePurchase
	InteractionTypeReview
)

// String returns the wire name of the interaction type.
func (i InteractionType) String() string {
	switch i {
	case InteractionTypeView:
		return "view"
	case InteractionTypeClick:
		return "click"
	case InteractionTypeFavorite:
		return "favorite"
	case InteractionTypeMessage:
		return "message"
	case InteractionTypePurchase:
		return "purchase"
	case InteractionTypeReview:
		return "review"
	default:
		return fmt.Sprintf("InteractionType(%d)", int(i))
	}
}

// InteractionTypeFromString parses a wire name into an InteractionType.
func InteractionTypeFromString(s string) (InteractionType, error) {
	switch s {
	case "view":
		return InteractionTypeView, nil
	case "click":
		return InteractionTypeClick, nil
	case "favorite":
		return InteractionTypeFavorite, nil
	case "message":
		return InteractionTypeMessage, nil
	case "purchase":
		return InteractionTypePurchase, nil
	case "review":
		return InteractionTypeReview, nil
	default:
		return 0, fmt.Errorf("unknown interaction type %q", s) //nolint:err113
	}
}

// Weight returns the implicit preference strength of the interaction type,
// used when the caller provides no explicit interaction value.
func (i InteractionType) Weight() float64 {
	switch i {
	case InteractionTypeView:
		return 1
	case InteractionTypeClick:
		return 2
	case InteractionTypeFavorite:
		return 3
	case InteractionTypeMessage:
		return 4
	case InteractionTypePurchase:
		return 5
	case InteractionTypeReview:
		return 4
	default:
		return 1
	}
}
