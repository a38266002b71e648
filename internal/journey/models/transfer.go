package models

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"

	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
	pkgstrings "memberportal/pkg/platform/strings"
)

// ContactType names who the member nominated on a transfer.
type ContactType string

const (
	ContactTypeFinancialAdviser ContactType = "financial_adviser"
	ContactTypeReceivingScheme  ContactType = "receiving_scheme"
)

func (t ContactType) IsValid() bool {
	return t == ContactTypeFinancialAdviser || t == ContactTypeReceivingScheme
}

// Address is a postal address. Lines are stored as given.
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city,omitempty"`
	Postcode string `json:"postcode"`
	Country  string `json:"country,omitempty"`
}

// Contact is a person or organisation involved in a transfer.
type Contact struct {
	Name        string   `json:"name"`
	CompanyName string   `json:"company_name,omitempty"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	SchemeName  string   `json:"scheme_name,omitempty"`
	Address     *Address `json:"address,omitempty"`
}

// TransferPayload carries the answers of a transfer-out application.
type TransferPayload struct {
	NameOfPlan          string                   `json:"name_of_plan,omitempty"`
	TypeOfPayment       string                   `json:"type_of_payment,omitempty"`
	TransferPercentage  int                      `json:"transfer_percentage,omitempty"`
	FinancialAdviceDate *time.Time               `json:"financial_advice_date,omitempty"`
	Contacts            map[ContactType]*Contact `json:"contacts,omitempty"`
	Tags                []string                 `json:"document_tags,omitempty"`
	Quote               json.RawMessage          `json:"quote,omitempty"`
}

func (TransferPayload) JourneyType() id.JourneyType { return id.JourneyTypeTransfer }

func (p TransferPayload) DocumentTags() []string { return slices.Clone(p.Tags) }

func (p TransferPayload) Clone() TransferPayload {
	c := p
	c.FinancialAdviceDate = cloneTime(p.FinancialAdviceDate)
	c.Tags = slices.Clone(p.Tags)
	c.Quote = slices.Clone(p.Quote)
	if p.Contacts != nil {
		c.Contacts = make(map[ContactType]*Contact, len(p.Contacts))
		for t, contact := range p.Contacts {
			cc := *contact
			if contact.Address != nil {
				a := *contact.Address
				cc.Address = &a
			}
			c.Contacts[t] = &cc
		}
	}
	return c
}

func (p *TransferPayload) SetPlan(nameOfPlan, typeOfPayment string) error {
	nameOfPlan = strings.TrimSpace(nameOfPlan)
	if nameOfPlan == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name of plan is required")
	}
	p.NameOfPlan = nameOfPlan
	p.TypeOfPayment = strings.TrimSpace(typeOfPayment)
	return nil
}

// SetTransferPercentage records a partial transfer. 100 is a full transfer.
func (p *TransferPayload) SetTransferPercentage(pct int) error {
	if pct < 1 || pct > 100 {
		return dErrors.New(dErrors.CodeInvalidInput, "transfer percentage must be between 1 and 100")
	}
	p.TransferPercentage = pct
	return nil
}

func (p *TransferPayload) SetFinancialAdviceDate(date, now time.Time) error {
	if err := ensureNotFuture("financial advice date", date, now); err != nil {
		return err
	}
	p.FinancialAdviceDate = &date
	return nil
}

// SubmitContact creates or replaces a contact, keeping any address already
// recorded for it.
func (p *TransferPayload) SubmitContact(t ContactType, c Contact) error {
	if !t.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown contact type")
	}
	if strings.TrimSpace(c.Name) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "contact name is required")
	}
	if p.Contacts == nil {
		p.Contacts = make(map[ContactType]*Contact)
	}
	if existing, ok := p.Contacts[t]; ok && c.Address == nil {
		c.Address = existing.Address
	}
	p.Contacts[t] = &c
	return nil
}

// SubmitContactAddress attaches an address to a contact submitted earlier.
func (p *TransferPayload) SubmitContactAddress(t ContactType, a Address) error {
	c, ok := p.Contacts[t]
	if !ok {
		return dErrors.New(dErrors.CodeInvalidInput, "contact "+string(t)+" must be submitted before its address")
	}
	if strings.TrimSpace(a.Line1) == "" || strings.TrimSpace(a.Postcode) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "address line1 and postcode are required")
	}
	c.Address = &a
	return nil
}

func (p TransferPayload) Contact(t ContactType) (Contact, bool) {
	c, ok := p.Contacts[t]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

func (p *TransferPayload) SetDocumentTags(tags []string) {
	p.Tags = pkgstrings.DedupeAndTrim(tags)
}

func (p TransferPayload) ValidateForSubmission() error {
	if p.NameOfPlan == "" {
		return dErrors.New(dErrors.CodeValidation, "name of plan is required before submission")
	}
	if p.TransferPercentage == 0 {
		return dErrors.New(dErrors.CodeValidation, "transfer percentage is required before submission")
	}
	if _, ok := p.Contacts[ContactTypeReceivingScheme]; !ok {
		return dErrors.New(dErrors.CodeValidation, "receiving scheme contact is required before submission")
	}
	return nil
}

// ContactTypes lists the submitted contacts in a stable order.
func (p TransferPayload) ContactTypes() []ContactType {
	return slices.Sorted(maps.Keys(p.Contacts))
}
