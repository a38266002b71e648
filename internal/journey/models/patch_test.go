package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "memberportal/pkg/domain-errors"
)

func TestTransferApplyPatch(t *testing.T) {
	t.Run("rejected field leaves the payload untouched", func(t *testing.T) {
		p := TransferPayload{}
		require.NoError(t, p.SubmitContact(ContactTypeReceivingScheme, Contact{Name: "Scheme Ltd"}))
		before := p
		beforeContact := *p.Contacts[ContactTypeReceivingScheme]

		err := p.ApplyPatch(json.RawMessage(`{
			"name_of_plan": "SIPP",
			"contacts": {"receiving_scheme": {"name": "Other Scheme"}},
			"transfer_percentage": 500
		}`), payloadNow)

		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		assert.Equal(t, before.NameOfPlan, p.NameOfPlan)
		assert.Equal(t, beforeContact, *p.Contacts[ContactTypeReceivingScheme])
	})

	t.Run("future advice date is rejected", func(t *testing.T) {
		p := TransferPayload{}
		future := payloadNow.Add(time.Hour).Format(time.RFC3339)
		err := p.ApplyPatch(json.RawMessage(`{"financial_advice_date":"`+future+`"}`), payloadNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
		assert.Nil(t, p.FinancialAdviceDate)
	})

	t.Run("contacts are submitted before addresses", func(t *testing.T) {
		p := TransferPayload{}
		require.NoError(t, p.ApplyPatch(json.RawMessage(`{
			"contacts": {"financial_adviser": {"name": "Ann", "company_name": "Advice Co"}},
			"contact_addresses": {"financial_adviser": {"line1": "2 Low Rd", "postcode": "ZZ9 9ZZ"}}
		}`), payloadNow))

		adviser, ok := p.Contact(ContactTypeFinancialAdviser)
		require.True(t, ok)
		assert.Equal(t, "Advice Co", adviser.CompanyName)
		require.NotNil(t, adviser.Address)
		assert.Equal(t, "ZZ9 9ZZ", adviser.Address.Postcode)
	})

	t.Run("resubmitting a contact keeps its address", func(t *testing.T) {
		p := TransferPayload{}
		require.NoError(t, p.ApplyPatch(json.RawMessage(`{"contacts":{"receiving_scheme":{"name":"A","address":{"line1":"1 High St","postcode":"AB1 2CD"}}}}`), payloadNow))
		require.NoError(t, p.ApplyPatch(json.RawMessage(`{"contacts":{"receiving_scheme":{"name":"B"}}}`), payloadNow))

		scheme, _ := p.Contact(ContactTypeReceivingScheme)
		assert.Equal(t, "B", scheme.Name)
		require.NotNil(t, scheme.Address)
		assert.Equal(t, "1 High St", scheme.Address.Line1)
	})

	t.Run("plan fields merge with the stored plan", func(t *testing.T) {
		p := TransferPayload{}
		require.NoError(t, p.SetPlan("SIPP", "cash"))
		require.NoError(t, p.ApplyPatch(json.RawMessage(`{"type_of_payment":"in_specie","quote":{"value":1}}`), payloadNow))
		assert.Equal(t, "SIPP", p.NameOfPlan)
		assert.Equal(t, "in_specie", p.TypeOfPayment)
		assert.JSONEq(t, `{"value":1}`, string(p.Quote))

		require.NoError(t, p.ApplyPatch(json.RawMessage(`{"quote":null}`), payloadNow))
		assert.Nil(t, p.Quote)
	})

	t.Run("empty body is a no-op", func(t *testing.T) {
		p := TransferPayload{}
		require.NoError(t, p.ApplyPatch(nil, payloadNow))
		require.NoError(t, p.ApplyPatch(json.RawMessage(`{}`), payloadNow))
		assert.Equal(t, TransferPayload{}, p)
	})
}

func TestRetirementApplyPatch(t *testing.T) {
	t.Run("each setter rule is enforced", func(t *testing.T) {
		future := payloadNow.Add(24 * time.Hour).Format(time.RFC3339)
		for _, body := range []string{
			`{"pension_wise_date":"` + future + `"}`,
			`{"financial_advice_date":"` + future + `"}`,
			`{"lifetime_allowance_percentage":101}`,
			`{"selected_quote_name":"standard"}`,
			`{"unknown":true}`,
			`[]`,
		} {
			p := RetirementPayload{}
			err := p.ApplyPatch(json.RawMessage(body), payloadNow)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), body)
			assert.Equal(t, RetirementPayload{}, p, body)
		}
	})

	t.Run("retirement date alone updates the selected quote", func(t *testing.T) {
		p := RetirementPayload{}
		require.NoError(t, p.SelectQuote("standard", json.RawMessage(`{"lump_sum":1}`), payloadNow))

		require.NoError(t, p.ApplyPatch(json.RawMessage(`{"selected_retirement_date":"2023-01-08T00:00:00Z","acknowledgements":["terms"],"document_tags":["id"," id "]}`), payloadNow))

		assert.Equal(t, "standard", p.SelectedQuoteName)
		assert.JSONEq(t, `{"lump_sum":1}`, string(p.QuoteSummary))
		assert.Equal(t, time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC), p.SelectedRetirementDate)
		assert.Equal(t, []string{"terms"}, p.Acknowledgements)
		assert.Equal(t, []string{"id"}, p.DocumentTags())
	})
}

func TestQuoteSelectionApplyPatch(t *testing.T) {
	p := QuoteSelectionPayload{}
	err := p.ApplyPatch(json.RawMessage(`{"quote":{"value":1}}`), payloadNow)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), "a quote needs a name")

	require.NoError(t, p.ApplyPatch(json.RawMessage(`{"selected_quote_name":"early","quote":{"value":1}}`), payloadNow))
	assert.Equal(t, "early", p.SelectedQuoteName)
	assert.JSONEq(t, `{"value":1}`, string(p.Quote))
}
