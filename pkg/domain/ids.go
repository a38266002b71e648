// Package domain holds identifiers shared by every bounded context.
//
// Construct identifiers through the Parse functions at trust boundaries;
// direct conversion skips validation and is reserved for tests and stores
// reading back data that was validated on the way in.
package domain

import (
	"fmt"
	"strings"
	"unicode"

	dErrors "memberportal/pkg/domain-errors"
)

// BusinessGroup names the pension scheme administrator a member belongs to.
// Invariant: exactly three upper-case ASCII letters or digits.
type BusinessGroup string

// ReferenceNumber identifies a member inside a business group.
// Invariant: one to seven ASCII digits.
type ReferenceNumber string

const (
	businessGroupLength   = 3
	maxReferenceNumberLen = 7
)

// ParseBusinessGroup validates external input. Lower-case input is accepted
// and normalized to upper case.
func ParseBusinessGroup(s string) (BusinessGroup, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "business group cannot be empty")
	}
	if len(s) != businessGroupLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "business group must be 3 characters")
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !(unicode.IsUpper(r) || unicode.IsDigit(r)) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "business group must be alphanumeric")
		}
	}
	return BusinessGroup(s), nil
}

// ParseReferenceNumber validates external input.
func ParseReferenceNumber(s string) (ReferenceNumber, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reference number cannot be empty")
	}
	if len(s) > maxReferenceNumberLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reference number must be at most 7 digits")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "reference number must be numeric")
		}
	}
	return ReferenceNumber(s), nil
}

func (b BusinessGroup) String() string   { return string(b) }
func (r ReferenceNumber) String() string { return string(r) }

// Member identifies one scheme member.
type Member struct {
	BusinessGroup   BusinessGroup   `json:"business_group"`
	ReferenceNumber ReferenceNumber `json:"reference_number"`
}

// ParseMember validates both halves of a member identity.
func ParseMember(businessGroup, referenceNumber string) (Member, error) {
	bg, err := ParseBusinessGroup(businessGroup)
	if err != nil {
		return Member{}, err
	}
	ref, err := ParseReferenceNumber(referenceNumber)
	if err != nil {
		return Member{}, err
	}
	return Member{BusinessGroup: bg, ReferenceNumber: ref}, nil
}

func (m Member) IsZero() bool {
	return m.BusinessGroup == "" && m.ReferenceNumber == ""
}

func (m Member) String() string {
	return fmt.Sprintf("%s/%s", m.BusinessGroup, m.ReferenceNumber)
}

// JourneyKey is the persistence identity of a journey: one journey per member
// and journey type.
type JourneyKey struct {
	Member Member
	Type   JourneyType
}

func NewJourneyKey(member Member, journeyType JourneyType) JourneyKey {
	return JourneyKey{Member: member, Type: journeyType}
}

func (k JourneyKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Member.BusinessGroup, k.Member.ReferenceNumber, k.Type)
}

// ParseJourneyKey is the inverse of JourneyKey.String.
func ParseJourneyKey(s string) (JourneyKey, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return JourneyKey{}, dErrors.New(dErrors.CodeInvalidInput, "journey key must be business_group/reference_number/journey_type")
	}
	member, err := ParseMember(parts[0], parts[1])
	if err != nil {
		return JourneyKey{}, err
	}
	journeyType, err := ParseJourneyType(parts[2])
	if err != nil {
		return JourneyKey{}, err
	}
	return NewJourneyKey(member, journeyType), nil
}
