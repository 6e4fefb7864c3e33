package llm

import (
	"fmt"
	"strings"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
)

// Config selects models per agent. Every agent falls back to the default
// model/temperature unless an override is set.
type Config struct {
	Model               string  `envconfig:"MODEL" split_words:"true" default:"gpt-5-nano"`
	Temperature         float64 `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	MaxCompletionTokens int64   `envconfig:"MAX_COMPLETION_TOKENS" split_words:"true" default:"2000"`

	TriageModel    string `envconfig:"TRIAGE_MODEL" split_words:"true"`
	GeneratorModel string `envconfig:"GENERATOR_MODEL" split_words:"true"`
	GeneralModel   string `envconfig:"GENERAL_MODEL" split_words:"true"`
	ResponderModel string `envconfig:"RESPONDER_MODEL" split_words:"true"`

	TriageTemperature    float64 `envconfig:"TRIAGE_TEMPERATURE" split_words:"true" default:"-1"`
	GeneratorTemperature float64 `envconfig:"GENERATOR_TEMPERATURE" split_words:"true" default:"-1"`
	GeneralTemperature   float64 `envconfig:"GENERAL_TEMPERATURE" split_words:"true" default:"-1"`
	ResponderTemperature float64 `envconfig:"RESPONDER_TEMPERATURE" split_words:"true" default:"-1"`
}

// Settings are the resolved model parameters for one agent.
type Settings struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("default model is required")
	}
	return nil
}

// For resolves the settings for an agent, applying overrides on top of the
// defaults.
func (c Config) For(agent contractx.AgentName) Settings {
	model := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float64) {
		if v := strings.TrimSpace(m); v != "" {
			model = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch agent {
	case contractx.AgentTriage:
		override(c.TriageModel, c.TriageTemperature)
	case contractx.AgentCampaignGenerator:
		override(c.GeneratorModel, c.GeneratorTemperature)
	case contractx.AgentGeneralChat:
		override(c.GeneralModel, c.GeneralTemperature)
	case contractx.AgentInsufficientData:
		override(c.ResponderModel, c.ResponderTemperature)
	}

	return Settings{
		Model:               model,
		Temperature:         temp,
		MaxCompletionTokens: c.MaxCompletionTokens,
	}
}
