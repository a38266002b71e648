package models

import (
	"encoding/json"
	"slices"
	"strings"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

// QuoteSelectionPayload records which calculated quote the member picked.
type QuoteSelectionPayload struct {
	SelectedQuoteName string          `json:"selected_quote_name,omitempty"`
	Quote             json.RawMessage `json:"quote,omitempty"`
}

func (QuoteSelectionPayload) JourneyType() id.JourneyType { return id.JourneyTypeQuoteSelection }

func (p QuoteSelectionPayload) Clone() QuoteSelectionPayload {
	c := p
	c.Quote = slices.Clone(p.Quote)
	return c
}

func (p *QuoteSelectionPayload) Select(name string, quote json.RawMessage) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "quote name is required")
	}
	if len(quote) > 0 && !json.Valid(quote) {
		return dErrors.New(dErrors.CodeInvalidInput, "quote must be valid JSON")
	}
	p.SelectedQuoteName = name
	p.Quote = slices.Clone(quote)
	return nil
}

func (p QuoteSelectionPayload) ValidateForSubmission() error {
	if p.SelectedQuoteName == "" {
		return dErrors.New(dErrors.CodeValidation, "a quote must be selected before submission")
	}
	return nil
}
