package campaign

import (
	"encoding/json"
	"strings"
)

// Result is the classification of a run's final text: exactly one of a
// structured campaign draft or plain assistant text.
type Result struct {
	Draft *Draft
	Text  string
}

func (r Result) IsCampaign() bool {
	return r.Draft != nil
}

// Classify decides whether raw final text is a valid campaign draft. It is
// total and deterministic: any parse or schema failure yields a text result,
// never an error. That is the expected path for the general-chat and
// insufficient-data agents.
func Classify(raw string) Result {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return Result{Text: raw}
	}

	var draft Draft
	if err := json.Unmarshal([]byte(trimmed), &draft); err != nil {
		return Result{Text: raw}
	}
	if err := draft.Validate(); err != nil {
		return Result{Text: raw}
	}
	return Result{Draft: &draft, Text: raw}
}
