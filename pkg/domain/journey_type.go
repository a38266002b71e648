package domain

import dErrors "memberportal/pkg/domain-errors"

// JourneyType names one guided online application.
// Invariant: the value must be one of the supported journey types.
type JourneyType string

const (
	JourneyTypeRetirement     JourneyType = "retirement"
	JourneyTypeTransfer       JourneyType = "transfer"
	JourneyTypeQuoteSelection JourneyType = "quote_selection"
)

var validJourneyTypes = map[JourneyType]bool{
	JourneyTypeRetirement:     true,
	JourneyTypeTransfer:       true,
	JourneyTypeQuoteSelection: true,
}

// ParseJourneyType constructs a JourneyType from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseJourneyType(s string) (JourneyType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "journey type cannot be empty")
	}
	t := JourneyType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid journey type")
	}
	return t, nil
}

func (t JourneyType) IsValid() bool {
	return validJourneyTypes[t]
}

func (t JourneyType) String() string {
	return string(t)
}
