package models

import (
	"encoding/json"
	"slices"
	"strings"

	dErrors "memberportal/pkg/domain-errors"
)

// QuestionForm is the single question/answer captured when a step is
// submitted. An empty field stands for "no value"; the zero QuestionForm is
// the empty form returned for pages not answered yet.
type QuestionForm struct {
	QuestionKey string `json:"question_key,omitempty"`
	AnswerKey   string `json:"answer_key,omitempty"`
	AnswerValue string `json:"answer_value,omitempty"`
}

// NewQuestionForm returns nil when every field is blank, so callers can pass
// optional request fields straight through.
func NewQuestionForm(questionKey, answerKey, answerValue string) *QuestionForm {
	f := QuestionForm{
		QuestionKey: strings.TrimSpace(questionKey),
		AnswerKey:   strings.TrimSpace(answerKey),
		AnswerValue: answerValue,
	}
	if f.IsEmpty() {
		return nil
	}
	return &f
}

func (f QuestionForm) IsEmpty() bool {
	return f.QuestionKey == "" && f.AnswerKey == "" && f.AnswerValue == ""
}

// GenericDataEntry is an opaque structured blob stored against a step.
type GenericDataEntry struct {
	FormKey string          `json:"form_key"`
	Payload json.RawMessage `json:"payload"`
}

// Checkbox is one option of a multi-select list.
type Checkbox struct {
	Key      string `json:"key"`
	Selected bool   `json:"selected"`
}

// CheckboxesList is a multi-select answer stored against a step.
type CheckboxesList struct {
	Key        string     `json:"key"`
	Checkboxes []Checkbox `json:"checkboxes"`
}

// NewCheckboxesList validates the list key and option keys.
// Invariants: key non-empty, option keys non-empty and unique.
func NewCheckboxesList(key string, checkboxes []Checkbox) (CheckboxesList, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return CheckboxesList{}, dErrors.New(dErrors.CodeInvalidInput, "checkboxes list key cannot be empty")
	}
	seen := make(map[string]struct{}, len(checkboxes))
	for _, cb := range checkboxes {
		if cb.Key == "" {
			return CheckboxesList{}, dErrors.New(dErrors.CodeInvalidInput, "checkbox key cannot be empty")
		}
		if _, dup := seen[cb.Key]; dup {
			return CheckboxesList{}, dErrors.New(dErrors.CodeInvalidInput, "duplicate checkbox key "+cb.Key)
		}
		seen[cb.Key] = struct{}{}
	}
	return CheckboxesList{Key: key, Checkboxes: slices.Clone(checkboxes)}, nil
}

// Selected returns the keys of the ticked options in list order.
func (l CheckboxesList) Selected() []string {
	var keys []string
	for _, cb := range l.Checkboxes {
		if cb.Selected {
			keys = append(keys, cb.Key)
		}
	}
	return keys
}

func (l CheckboxesList) clone() CheckboxesList {
	return CheckboxesList{Key: l.Key, Checkboxes: slices.Clone(l.Checkboxes)}
}

func (e GenericDataEntry) clone() GenericDataEntry {
	return GenericDataEntry{FormKey: e.FormKey, Payload: slices.Clone(e.Payload)}
}
