package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/triage.txt
	triageRaw string

	//go:embed template/campaign_generator.txt
	generatorRaw string

	//go:embed template/general_chat.txt
	generalChatRaw string

	//go:embed template/insufficient_data.txt
	insufficientRaw string
)

// Set holds the system instructions for every agent.
type Set struct {
	Triage            string
	CampaignGenerator string
	GeneralChat       string
	InsufficientData  string
}

// LoadSet returns the embedded instructions, trimmed. Compile-time embed, so
// this is safe to call from anywhere.
func LoadSet() Set {
	return Set{
		Triage:            strings.TrimSpace(triageRaw),
		CampaignGenerator: strings.TrimSpace(generatorRaw),
		GeneralChat:       strings.TrimSpace(generalChatRaw),
		InsufficientData:  strings.TrimSpace(insufficientRaw),
	}
}
