package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
	pkgstrings "memberportal/pkg/platform/strings"
)

// RetirementPayload carries the answers of a retirement application.
type RetirementPayload struct {
	SelectedQuoteName           string          `json:"selected_quote_name,omitempty"`
	QuoteSummary                json.RawMessage `json:"quote_summary,omitempty"`
	SelectedRetirementDate      time.Time       `json:"selected_retirement_date,omitzero"`
	FinancialAdviceDate         *time.Time      `json:"financial_advice_date,omitempty"`
	PensionWiseDate             *time.Time      `json:"pension_wise_date,omitempty"`
	Acknowledgements            []string        `json:"acknowledgements,omitempty"`
	Tags                        []string        `json:"document_tags,omitempty"`
	LifetimeAllowancePercentage *float64        `json:"lifetime_allowance_percentage,omitempty"`
}

func (RetirementPayload) JourneyType() id.JourneyType { return id.JourneyTypeRetirement }

func (p RetirementPayload) ExpiryAnchor() (time.Time, bool) {
	return p.SelectedRetirementDate, !p.SelectedRetirementDate.IsZero()
}

func (p RetirementPayload) DocumentTags() []string { return slices.Clone(p.Tags) }

func (p RetirementPayload) Clone() RetirementPayload {
	c := p
	c.QuoteSummary = slices.Clone(p.QuoteSummary)
	c.FinancialAdviceDate = cloneTime(p.FinancialAdviceDate)
	c.PensionWiseDate = cloneTime(p.PensionWiseDate)
	c.Acknowledgements = slices.Clone(p.Acknowledgements)
	c.Tags = slices.Clone(p.Tags)
	if p.LifetimeAllowancePercentage != nil {
		pct := *p.LifetimeAllowancePercentage
		c.LifetimeAllowancePercentage = &pct
	}
	return c
}

// SelectQuote records the quote the member chose and the date it retires on.
func (p *RetirementPayload) SelectQuote(name string, summary json.RawMessage, retirementDate time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "quote name is required")
	}
	if retirementDate.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "retirement date is required")
	}
	p.SelectedQuoteName = name
	p.QuoteSummary = slices.Clone(summary)
	p.SelectedRetirementDate = retirementDate
	return nil
}

func (p *RetirementPayload) SetFinancialAdviceDate(date, now time.Time) error {
	if err := ensureNotFuture("financial advice date", date, now); err != nil {
		return err
	}
	p.FinancialAdviceDate = &date
	return nil
}

func (p *RetirementPayload) SetPensionWiseDate(date, now time.Time) error {
	if err := ensureNotFuture("pension wise date", date, now); err != nil {
		return err
	}
	p.PensionWiseDate = &date
	return nil
}

func (p *RetirementPayload) SetLifetimeAllowancePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "lifetime allowance percentage must be between 0 and 100")
	}
	p.LifetimeAllowancePercentage = &pct
	return nil
}

func (p *RetirementPayload) Acknowledge(keys ...string) {
	p.Acknowledgements = pkgstrings.DedupeAndTrim(append(p.Acknowledgements, keys...))
}

func (p *RetirementPayload) SetDocumentTags(tags []string) {
	p.Tags = pkgstrings.DedupeAndTrim(tags)
}

func (p RetirementPayload) ValidateForSubmission() error {
	if p.SelectedQuoteName == "" {
		return dErrors.New(dErrors.CodeValidation, "a retirement quote must be selected before submission")
	}
	if p.SelectedRetirementDate.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "a retirement date must be selected before submission")
	}
	return nil
}
