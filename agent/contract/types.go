package contract

import "encoding/json"

// AgentName identifies one state of the handoff state machine.
type AgentName string

const (
	AgentTriage            AgentName = "triage"
	AgentCampaignGenerator AgentName = "campaign_generator"
	AgentGeneralChat       AgentName = "general_chat"
	AgentInsufficientData  AgentName = "insufficient_data_responder"
)

// OutputShape declares what a terminal agent produces: unconstrained text or
// the campaign schema. Triage declares neither; it must always hand off.
type OutputShape string

const (
	ShapeNone     OutputShape = ""
	ShapeText     OutputShape = "text"
	ShapeCampaign OutputShape = "campaign"
)

// UserContext carries the authenticated subject of a turn. The user id is
// the only value the store-data tool may be invoked with; it never comes
// from model-generated text.
type UserContext struct {
	UserID string
}

// Role is the author of a prior conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// HistoryMessage is one prior message of the thread, replayed to the model
// at the start of every run.
type HistoryMessage struct {
	Role    Role
	Content string
}

// RawOutput is the final product of one orchestrator run: the text the
// terminal agent produced plus which agent and declared shape it came from.
// Classification of the text happens downstream.
type RawOutput struct {
	Agent AgentName
	Shape OutputShape
	Text  string
}

// StoreProfile is the store identity portion of a snapshot.
type StoreProfile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Currency string `json:"currency"`
	Timezone string `json:"timezone"`
}

// Snapshot aggregates the latest summaries of a user's connected data
// sources. Summary payloads are kept as raw JSON; their internal shape is
// owned by the ingestion pipeline, not by us.
type Snapshot struct {
	Store            StoreProfile    `json:"store"`
	GoogleAds        json.RawMessage `json:"google_ads,omitempty"`
	Shopify          json.RawMessage `json:"shopify,omitempty"`
	WebsiteAnalytics json.RawMessage `json:"website_analytics,omitempty"`
}
