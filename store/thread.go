package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
)

// ErrThreadNotFound covers both a missing thread and a thread owned by a
// different user; callers must not be able to tell the two apart.
var ErrThreadNotFound = errors.New("thread not found")

// ChatThread is one conversation owned by a user.
type ChatThread struct {
	bun.BaseModel `bun:"table:chat_threads"`

	ID        uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID    uuid.UUID `bun:"user_id,type:uuid,notnull" json:"userId"`
	Title     string    `bun:"title,notnull" json:"title"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// MessageBody is the jsonb payload of a chat message.
type MessageBody struct {
	Content string `json:"content"`
}

// ChatMessage is one message within a thread. CampaignID is set only on
// assistant messages whose turn produced a persisted campaign.
type ChatMessage struct {
	bun.BaseModel `bun:"table:chat_messages"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	ThreadID   uuid.UUID      `bun:"thread_id,type:uuid,notnull" json:"threadId"`
	Role       contractx.Role `bun:"role,notnull" json:"role"`
	Message    MessageBody    `bun:"message,type:jsonb,notnull" json:"message"`
	CampaignID *uuid.UUID     `bun:"campaign_id,type:uuid" json:"campaignId,omitempty"`
	CreatedAt  time.Time      `bun:"created_at,notnull" json:"createdAt"`
}

// ThreadStore provides thread and message persistence.
type ThreadStore struct {
	db *bun.DB
}

func NewThreadStore(db *bun.DB) *ThreadStore {
	return &ThreadStore{db: db}
}

// Resolve returns the existing thread when threadID is set, enforcing
// ownership, or creates a fresh thread titled title otherwise.
func (s *ThreadStore) Resolve(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID, title string) (*ChatThread, error) {
	if threadID != nil {
		return s.get(ctx, userID, *threadID)
	}

	now := time.Now().UTC()
	thread := &ChatThread{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.NewInsert().Model(thread).Exec(ctx); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return thread, nil
}

// AppendMessage stores one message and bumps the thread's updated_at.
// campaignID links an assistant message to the campaign its turn created.
func (s *ThreadStore) AppendMessage(ctx context.Context, threadID uuid.UUID, role contractx.Role, content string, campaignID *uuid.UUID) (*ChatMessage, error) {
	msg := &ChatMessage{
		ID:         uuid.New(),
		ThreadID:   threadID,
		Role:       role,
		Message:    MessageBody{Content: content},
		CampaignID: campaignID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.db.NewInsert().Model(msg).Exec(ctx); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	_, err := s.db.NewUpdate().
		Model((*ChatThread)(nil)).
		Set("updated_at = ?", msg.CreatedAt).
		Where("id = ?", threadID).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("touch thread: %w", err)
	}
	return msg, nil
}

// ListByUser returns the user's threads, most recently active first.
func (s *ThreadStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]ChatThread, error) {
	threads := make([]ChatThread, 0)
	err := s.db.NewSelect().
		Model(&threads).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	return threads, nil
}

// GetWithHistory returns the thread and its most recent limit messages,
// newest first. limit <= 0 means no limit.
func (s *ThreadStore) GetWithHistory(ctx context.Context, userID, threadID uuid.UUID, limit int) (*ChatThread, []ChatMessage, error) {
	thread, err := s.get(ctx, userID, threadID)
	if err != nil {
		return nil, nil, err
	}

	messages := make([]ChatMessage, 0)
	q := s.db.NewSelect().
		Model(&messages).
		Where("thread_id = ?", threadID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, nil, fmt.Errorf("load messages: %w", err)
	}
	return thread, messages, nil
}

func (s *ThreadStore) get(ctx context.Context, userID, threadID uuid.UUID) (*ChatThread, error) {
	thread := new(ChatThread)
	err := s.db.NewSelect().
		Model(thread).
		Where("id = ?", threadID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return thread, nil
}
