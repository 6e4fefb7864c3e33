package campaign

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Channel is a delivery channel for a campaign. The set is closed; anything
// else fails validation.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp:
		return true
	}
	return false
}

type CallToAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Message struct {
	Headline     string        `json:"headline"`
	Body         string        `json:"body"`
	CallToAction *CallToAction `json:"call_to_action,omitempty"`
}

type Timeline struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type Metrics struct {
	OpenRate       float64 `json:"open_rate"`
	ClickRate      float64 `json:"click_rate"`
	ConversionRate float64 `json:"conversion_rate"`
	ROI            float64 `json:"roi"`
}

var errMetricsIncomplete = errors.New("expected_metrics must include open_rate, click_rate, conversion_rate and roi")

// UnmarshalJSON requires all four metric fields to be present, matching the
// generator agent's declared output schema. A zero value is allowed; an
// absent key is not.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw struct {
		OpenRate       *float64 `json:"open_rate"`
		ClickRate      *float64 `json:"click_rate"`
		ConversionRate *float64 `json:"conversion_rate"`
		ROI            *float64 `json:"roi"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.OpenRate == nil || raw.ClickRate == nil || raw.ConversionRate == nil || raw.ROI == nil {
		return errMetricsIncomplete
	}
	m.OpenRate = *raw.OpenRate
	m.ClickRate = *raw.ClickRate
	m.ConversionRate = *raw.ConversionRate
	m.ROI = *raw.ROI
	return nil
}

// Draft is the structured campaign the generator agent emits. Field names
// follow the wire schema the agent is instructed to produce.
type Draft struct {
	Title           string    `json:"campaign_title"`
	TargetAudience  string    `json:"target_audience"`
	Message         Message   `json:"message"`
	Channels        []Channel `json:"channels"`
	Timeline        Timeline  `json:"timeline"`
	Budget          string    `json:"budget"`
	ExpectedMetrics Metrics   `json:"expected_metrics"`
}

// Validate checks the schema constraints a parsed draft must satisfy before
// it may be persisted as a campaign.
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return errors.New("campaign_title is required")
	}
	if strings.TrimSpace(d.TargetAudience) == "" {
		return errors.New("target_audience is required")
	}
	if strings.TrimSpace(d.Message.Headline) == "" {
		return errors.New("message.headline is required")
	}
	if strings.TrimSpace(d.Message.Body) == "" {
		return errors.New("message.body is required")
	}
	if len(d.Channels) == 0 {
		return errors.New("at least one channel is required")
	}
	for _, ch := range d.Channels {
		if !ch.Valid() {
			return fmt.Errorf("unknown channel %q", ch)
		}
	}
	if strings.TrimSpace(d.Timeline.StartDate) == "" || strings.TrimSpace(d.Timeline.EndDate) == "" {
		return errors.New("timeline start_date and end_date are required")
	}
	if strings.TrimSpace(d.Budget) == "" {
		return errors.New("budget is required")
	}
	return nil
}

// JSON returns the canonical serialized form, used as assistant message
// content when a turn produces a campaign.
func (d *Draft) JSON() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
