package models

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"

	dErrors "memberportal/pkg/domain-errors"
)

// PayloadPatcher is implemented by payload pointers that accept partial
// updates from a client. Fields absent from raw are left alone; fields
// present go through the payload's validating setters. On error the payload
// is unchanged.
type PayloadPatcher interface {
	ApplyPatch(raw json.RawMessage, now time.Time) error
}

var (
	_ PayloadPatcher = (*RetirementPayload)(nil)
	_ PayloadPatcher = (*TransferPayload)(nil)
	_ PayloadPatcher = (*QuoteSelectionPayload)(nil)
)

// decodePatch reads raw into dst, rejecting fields dst does not declare.
func decodePatch(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not valid for this journey type")
	}
	return nil
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type retirementPatch struct {
	SelectedQuoteName           *string         `json:"selected_quote_name"`
	QuoteSummary                json.RawMessage `json:"quote_summary"`
	SelectedRetirementDate      *time.Time      `json:"selected_retirement_date"`
	FinancialAdviceDate         *time.Time      `json:"financial_advice_date"`
	PensionWiseDate             *time.Time      `json:"pension_wise_date"`
	Acknowledgements            []string        `json:"acknowledgements"`
	Tags                        *[]string       `json:"document_tags"`
	LifetimeAllowancePercentage *float64        `json:"lifetime_allowance_percentage"`
}

// ApplyPatch merges the quote fields with the stored selection, so a client
// may change the retirement date alone.
func (p *RetirementPayload) ApplyPatch(raw json.RawMessage, now time.Time) error {
	var patch retirementPatch
	if err := decodePatch(raw, &patch); err != nil {
		return err
	}

	next := p.Clone()

	if patch.SelectedQuoteName != nil || patch.QuoteSummary != nil || patch.SelectedRetirementDate != nil {
		name, summary, date := next.SelectedQuoteName, next.QuoteSummary, next.SelectedRetirementDate
		if patch.SelectedQuoteName != nil {
			name = *patch.SelectedQuoteName
		}
		if patch.QuoteSummary != nil {
			summary = patch.QuoteSummary
			if isJSONNull(summary) {
				summary = nil
			}
		}
		if patch.SelectedRetirementDate != nil {
			date = *patch.SelectedRetirementDate
		}
		if err := next.SelectQuote(name, summary, date); err != nil {
			return err
		}
	}
	if patch.FinancialAdviceDate != nil {
		if err := next.SetFinancialAdviceDate(*patch.FinancialAdviceDate, now); err != nil {
			return err
		}
	}
	if patch.PensionWiseDate != nil {
		if err := next.SetPensionWiseDate(*patch.PensionWiseDate, now); err != nil {
			return err
		}
	}
	if patch.LifetimeAllowancePercentage != nil {
		if err := next.SetLifetimeAllowancePercentage(*patch.LifetimeAllowancePercentage); err != nil {
			return err
		}
	}
	if len(patch.Acknowledgements) > 0 {
		next.Acknowledge(patch.Acknowledgements...)
	}
	if patch.Tags != nil {
		next.SetDocumentTags(*patch.Tags)
	}

	*p = next
	return nil
}

type transferPatch struct {
	NameOfPlan          *string                 `json:"name_of_plan"`
	TypeOfPayment       *string                 `json:"type_of_payment"`
	TransferPercentage  *int                    `json:"transfer_percentage"`
	FinancialAdviceDate *time.Time              `json:"financial_advice_date"`
	Contacts            map[ContactType]Contact `json:"contacts"`
	ContactAddresses    map[ContactType]Address `json:"contact_addresses"`
	Tags                *[]string               `json:"document_tags"`
	Quote               json.RawMessage         `json:"quote"`
}

// ApplyPatch submits contacts before addresses. An address nested in a
// contact is applied the same way as one under contact_addresses.
func (p *TransferPayload) ApplyPatch(raw json.RawMessage, now time.Time) error {
	var patch transferPatch
	if err := decodePatch(raw, &patch); err != nil {
		return err
	}

	next := p.Clone()

	if patch.NameOfPlan != nil || patch.TypeOfPayment != nil {
		name, payment := next.NameOfPlan, next.TypeOfPayment
		if patch.NameOfPlan != nil {
			name = *patch.NameOfPlan
		}
		if patch.TypeOfPayment != nil {
			payment = *patch.TypeOfPayment
		}
		if err := next.SetPlan(name, payment); err != nil {
			return err
		}
	}
	if patch.TransferPercentage != nil {
		if err := next.SetTransferPercentage(*patch.TransferPercentage); err != nil {
			return err
		}
	}
	if patch.FinancialAdviceDate != nil {
		if err := next.SetFinancialAdviceDate(*patch.FinancialAdviceDate, now); err != nil {
			return err
		}
	}
	for _, t := range slices.Sorted(maps.Keys(patch.Contacts)) {
		c := patch.Contacts[t]
		addr := c.Address
		c.Address = nil
		if err := next.SubmitContact(t, c); err != nil {
			return err
		}
		if addr != nil {
			if err := next.SubmitContactAddress(t, *addr); err != nil {
				return err
			}
		}
	}
	for _, t := range slices.Sorted(maps.Keys(patch.ContactAddresses)) {
		if err := next.SubmitContactAddress(t, patch.ContactAddresses[t]); err != nil {
			return err
		}
	}
	if patch.Tags != nil {
		next.SetDocumentTags(*patch.Tags)
	}
	if patch.Quote != nil {
		next.Quote = slices.Clone(patch.Quote)
		if isJSONNull(next.Quote) {
			next.Quote = nil
		}
	}

	*p = next
	return nil
}

type quoteSelectionPatch struct {
	SelectedQuoteName *string         `json:"selected_quote_name"`
	Quote             json.RawMessage `json:"quote"`
}

func (p *QuoteSelectionPayload) ApplyPatch(raw json.RawMessage, _ time.Time) error {
	var patch quoteSelectionPatch
	if err := decodePatch(raw, &patch); err != nil {
		return err
	}
	if patch.SelectedQuoteName == nil && patch.Quote == nil {
		return nil
	}

	next := p.Clone()
	name, quote := next.SelectedQuoteName, next.Quote
	if patch.SelectedQuoteName != nil {
		name = *patch.SelectedQuoteName
	}
	if patch.Quote != nil {
		quote = patch.Quote
		if isJSONNull(quote) {
			quote = nil
		}
	}
	if err := next.Select(name, quote); err != nil {
		return err
	}
	*p = next
	return nil
}
