package openaix

import (
	"errors"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Config describes the OpenAI-compatible endpoint all agents talk to.
// Per-agent model selection lives in agent/llm; this is the transport half.
type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// NewClient builds the shared SDK client. The client is stateless and safe
// for concurrent use across turns.
func NewClient(cfg Config) (*openaisdk.Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openaisdk.NewClient(opts...)
	return &client, nil
}
