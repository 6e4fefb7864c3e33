// Package gateway assembles store-data snapshots for the campaign
// generator's tool call.
package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/uptrace/bun"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
)

const (
	sourceGoogleAds        = "google_ads"
	sourceShopify          = "shopify"
	sourceWebsiteAnalytics = "website_analytics"

	statusConnected = "connected"
)

type storeRow struct {
	bun.BaseModel `bun:"table:stores"`

	ID       uuid.UUID `bun:"id,pk,type:uuid"`
	UserID   uuid.UUID `bun:"user_id,type:uuid"`
	Name     string    `bun:"name"`
	URL      string    `bun:"url"`
	Currency string    `bun:"currency"`
	Timezone string    `bun:"timezone"`
}

type connectionRow struct {
	bun.BaseModel `bun:"table:data_source_connections"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	StoreID    uuid.UUID `bun:"store_id,type:uuid"`
	SourceType string    `bun:"source_type"`
	Status     string    `bun:"status"`
}

type summaryRow struct {
	bun.BaseModel `bun:"table:data_source_summaries"`

	ID           uuid.UUID       `bun:"id,pk,type:uuid"`
	ConnectionID uuid.UUID       `bun:"connection_id,type:uuid"`
	Summary      json.RawMessage `bun:"summary,type:jsonb"`
	CreatedAt    time.Time       `bun:"created_at"`
}

// StoreData reads a user's store, its connected data sources and the
// latest summary per source. It implements contract.StoreDataGateway.
type StoreData struct {
	db  *bun.DB
	log zerolog.Logger
}

func NewStoreData(db *bun.DB) *StoreData {
	return &StoreData{
		db:  db,
		log: logx.Component("gateway"),
	}
}

// FetchSnapshot returns (nil, nil) when the user has no store, no
// connected sources, or no ingested summaries. Only infrastructure
// failures surface as errors.
func (g *StoreData) FetchSnapshot(ctx context.Context, userID string) (*contractx.Snapshot, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, err)
	}

	st := new(storeRow)
	err = g.db.NewSelect().
		Model(st).
		Where("user_id = ?", uid).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	connections := make([]connectionRow, 0)
	err = g.db.NewSelect().
		Model(&connections).
		Where("store_id = ?", st.ID).
		Where("status = ?", statusConnected).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	if len(connections) == 0 {
		return nil, nil
	}

	snap := &contractx.Snapshot{
		Store: contractx.StoreProfile{
			Name:     st.Name,
			URL:      st.URL,
			Currency: st.Currency,
			Timezone: st.Timezone,
		},
	}

	var ingested int
	for _, conn := range connections {
		summary := new(summaryRow)
		err := g.db.NewSelect().
			Model(summary).
			Where("connection_id = ?", conn.ID).
			Order("created_at DESC").
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s summary: %w", conn.SourceType, err)
		}

		switch conn.SourceType {
		case sourceGoogleAds:
			snap.GoogleAds = summary.Summary
		case sourceShopify:
			snap.Shopify = summary.Summary
		case sourceWebsiteAnalytics:
			snap.WebsiteAnalytics = summary.Summary
		default:
			g.log.Warn().Str("source_type", conn.SourceType).Msg("unknown data source type")
			continue
		}
		ingested++
	}

	// A store with connections but no ingested summaries has nothing for
	// the generator to work with.
	if ingested == 0 {
		return nil, nil
	}
	return snap, nil
}
