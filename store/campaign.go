package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	campaignx "github.com/shoplight-ai/campaignchat/campaign"
)

// Campaign is a persisted campaign draft, denormalized from the agent's
// JSON output so individual fields stay queryable.
type Campaign struct {
	bun.BaseModel `bun:"table:campaigns"`

	ID              uuid.UUID          `bun:"id,pk,type:uuid" json:"id"`
	UserID          uuid.UUID          `bun:"user_id,type:uuid,notnull" json:"userId"`
	ThreadID        *uuid.UUID         `bun:"thread_id,type:uuid" json:"threadId,omitempty"`
	Title           string             `bun:"campaign_title,notnull" json:"campaign_title"`
	TargetAudience  string             `bun:"target_audience,notnull" json:"target_audience"`
	Message         campaignx.Message  `bun:"message,type:jsonb,notnull" json:"message"`
	Channels        []string           `bun:"channels,array" json:"channels"`
	Timeline        campaignx.Timeline `bun:"timeline,type:jsonb,notnull" json:"timeline"`
	Budget          string             `bun:"budget,notnull" json:"budget"`
	ExpectedMetrics campaignx.Metrics  `bun:"expected_metrics,type:jsonb,notnull" json:"expected_metrics"`
	UserQuery       string             `bun:"user_query,notnull" json:"userQuery"`
	CreatedAt       time.Time          `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt       time.Time          `bun:"updated_at,notnull" json:"updatedAt"`
}

// CampaignStore persists generated campaigns.
type CampaignStore struct {
	db *bun.DB
}

func NewCampaignStore(db *bun.DB) *CampaignStore {
	return &CampaignStore{db: db}
}

// Create stores one campaign draft together with the query that produced
// it.
func (s *CampaignStore) Create(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID, draft campaignx.Draft, userQuery string) (*Campaign, error) {
	channels := make([]string, 0, len(draft.Channels))
	for _, c := range draft.Channels {
		channels = append(channels, string(c))
	}

	now := time.Now().UTC()
	c := &Campaign{
		ID:              uuid.New(),
		UserID:          userID,
		ThreadID:        threadID,
		Title:           draft.Title,
		TargetAudience:  draft.TargetAudience,
		Message:         draft.Message,
		Channels:        channels,
		Timeline:        draft.Timeline,
		Budget:          draft.Budget,
		ExpectedMetrics: draft.ExpectedMetrics,
		UserQuery:       userQuery,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.db.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}
