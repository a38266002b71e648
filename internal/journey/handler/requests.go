package handler

import (
	"encoding/json"
	"strings"

	"memberportal/internal/journey/models"
	id "memberportal/pkg/domain"
	dErrors "memberportal/pkg/domain-errors"
)

const maxPageKeyLength = 200

// StartRequest is the body of POST /journeys/{type}.
type StartRequest struct {
	CurrentPageKey string          `json:"current_page_key"`
	NextPageKey    string          `json:"next_page_key"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Validate implements httputil.Validatable. Both page keys are optional but
// must be given together.
func (r *StartRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CurrentPageKey = strings.TrimSpace(r.CurrentPageKey)
	r.NextPageKey = strings.TrimSpace(r.NextPageKey)
	if (r.CurrentPageKey == "") != (r.NextPageKey == "") {
		return dErrors.New(dErrors.CodeValidation, "current_page_key and next_page_key must be given together")
	}
	if err := validatePageKeys(r.CurrentPageKey, r.NextPageKey); err != nil {
		return err
	}
	return nil
}

// SubmitStepRequest is the body of POST /journeys/{type}/steps.
type SubmitStepRequest struct {
	CurrentPageKey string               `json:"current_page_key"`
	NextPageKey    string               `json:"next_page_key"`
	QuestionForm   *QuestionFormRequest `json:"question_form,omitempty"`
}

type QuestionFormRequest struct {
	QuestionKey string `json:"question_key"`
	AnswerKey   string `json:"answer_key"`
	AnswerValue string `json:"answer_value"`
}

func (r *SubmitStepRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CurrentPageKey = strings.TrimSpace(r.CurrentPageKey)
	r.NextPageKey = strings.TrimSpace(r.NextPageKey)
	if r.CurrentPageKey == "" {
		return dErrors.New(dErrors.CodeValidation, "current_page_key is required")
	}
	if r.NextPageKey == "" {
		return dErrors.New(dErrors.CodeValidation, "next_page_key is required")
	}
	return validatePageKeys(r.CurrentPageKey, r.NextPageKey)
}

// Form returns nil when no answer was sent.
func (r *SubmitStepRequest) Form() *models.QuestionForm {
	if r.QuestionForm == nil {
		return nil
	}
	return models.NewQuestionForm(r.QuestionForm.QuestionKey, r.QuestionForm.AnswerKey, r.QuestionForm.AnswerValue)
}

// UpdateNextPageRequest is the body of PUT /pages/{pageKey}/next.
type UpdateNextPageRequest struct {
	NextPageKey string `json:"next_page_key"`
}

// Validate allows a blank next page; it clears the step's destination.
func (r *UpdateNextPageRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.NextPageKey = strings.TrimSpace(r.NextPageKey)
	return validatePageKeys(r.NextPageKey)
}

// ReplaceStepsRequest is the body of PUT /journeys/{type}/steps.
type ReplaceStepsRequest struct {
	CurrentPageKey string `json:"current_page_key"`
	NextPageKey    string `json:"next_page_key"`
}

func (r *ReplaceStepsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CurrentPageKey = strings.TrimSpace(r.CurrentPageKey)
	r.NextPageKey = strings.TrimSpace(r.NextPageKey)
	if r.CurrentPageKey == "" || r.NextPageKey == "" {
		return dErrors.New(dErrors.CodeValidation, "current_page_key and next_page_key are required")
	}
	return validatePageKeys(r.CurrentPageKey, r.NextPageKey)
}

// CheckboxesRequest is the body of POST /pages/{pageKey}/checkboxes.
type CheckboxesRequest struct {
	Key        string            `json:"key"`
	Checkboxes []models.Checkbox `json:"checkboxes"`

	parsed models.CheckboxesList
}

func (r *CheckboxesRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	list, err := models.NewCheckboxesList(r.Key, r.Checkboxes)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, err.Error())
	}
	r.parsed = list
	return nil
}

func (r *CheckboxesRequest) List() models.CheckboxesList { return r.parsed }

func validatePageKeys(keys ...string) error {
	for _, k := range keys {
		if len(k) > maxPageKeyLength {
			return dErrors.New(dErrors.CodeValidation, "page keys must be at most 200 characters")
		}
	}
	return nil
}

func parseBusinessGroup(raw string) (id.BusinessGroup, error) {
	bg, err := id.ParseBusinessGroup(strings.TrimSpace(raw))
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, "business_group query parameter is invalid")
	}
	return bg, nil
}
