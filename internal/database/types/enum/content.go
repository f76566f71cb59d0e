package enum

import "fmt"

// ContentType identifies which kind of marketplace content a moderation
// request refers to. Reviews carry tighter policy thresholds than listings.
type ContentType int

const (
	ContentTypeListing ContentType = iota
	ContentTypeReview
)

// String returns the wire name of the content type.
func (c ContentType) String() string {
	switch c {
	case ContentTypeListing:
		return "listing"
	case ContentTypeReview:
		return "review"
	default:
		return fmt.Sprintf("ContentType(%d)", int(c))
	}
}

// ContentTypeFromString parses a wire name into a ContentType.
func ContentTypeFromString(s string) (ContentType, error) {
	switch s {
	case "listing":
		return ContentTypeListing, nil
	case "review":
		return ContentTypeReview, nil
	default:
		return 0, fmt.Errorf("unknown content type %q", s) //nolint:err113
	}
}
