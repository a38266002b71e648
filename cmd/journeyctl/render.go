package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"gopkg.in/yaml.v3"

	"memberportal/internal/journey/models"
)

// renderMarkdown summarises a journey as a markdown document with one table
// per branch.
func renderMarkdown[T models.Payload](j *models.Journey[T]) string {
	s := j.Snapshot()
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s journey for %s\n\n", s.Type, s.Member)
	fmt.Fprintf(&sb, "- **Started:** %s\n", s.StartDate.Format(time.RFC3339))
	if s.SubmissionDate != nil {
		fmt.Fprintf(&sb, "- **Submitted:** %s\n", s.SubmissionDate.Format(time.RFC3339))
	} else {
		sb.WriteString("- **Submitted:** no\n")
	}
	if !s.ExpirationDate.IsZero() {
		fmt.Fprintf(&sb, "- **Expires:** %s\n", s.ExpirationDate.Format(time.DateOnly))
	}
	if current, ok := j.CurrentPageKey(); ok {
		fmt.Fprintf(&sb, "- **Current page:** `%s`\n", current)
	}

	for _, b := range s.Branches {
		state := "inactive"
		if b.Number == s.ActiveBranch {
			state = "active"
		}
		fmt.Fprintf(&sb, "\n## Branch %d (%s)\n\n", b.Number, state)
		if len(b.Steps) == 0 {
			sb.WriteString("_no steps_\n")
			continue
		}
		sb.WriteString("| # | From | To | Submitted | Answer | Dead end |\n")
		sb.WriteString("|---|------|----|-----------|--------|----------|\n")
		for _, st := range b.Steps {
			answer := ""
			if st.QuestionForm != nil {
				answer = st.QuestionForm.AnswerKey
				if st.QuestionForm.AnswerValue != "" {
					answer += "=" + st.QuestionForm.AnswerValue
				}
			}
			deadEnd := ""
			if st.IsNextPageDeadEnd {
				deadEnd = "yes"
			}
			fmt.Fprintf(&sb, "| %d | `%s` | `%s` | %s | %s | %s |\n",
				st.SequenceNumber,
				cell(st.CurrentPageKey),
				cell(st.NextPageKey),
				st.SubmitDate.Format(time.RFC3339),
				cell(answer),
				deadEnd,
			)
		}
	}
	return sb.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderTerminal styles markdown for a terminal.
func renderTerminal(markdown string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// toYAML converts through JSON so the yaml keys match the API field names.
func toYAML(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func toJSON(v any) (string, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}
