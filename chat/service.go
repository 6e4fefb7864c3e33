// Package chat coordinates one conversational turn: thread resolution,
// message persistence, the agent run, and campaign capture.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	campaignx "github.com/shoplight-ai/campaignchat/campaign"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
	streamx "github.com/shoplight-ai/campaignchat/pkg/stream"
	"github.com/shoplight-ai/campaignchat/store"
)

const (
	// titleRunes caps the auto-generated thread title length.
	titleRunes = 50

	// defaultHistoryLimit bounds how many prior messages are replayed to
	// the model per turn.
	defaultHistoryLimit = 50

	// threadViewMessages bounds the message history returned per thread
	// read.
	threadViewMessages = 10
)

// AgentRunner executes one agent run over the conversation so far.
type AgentRunner interface {
	Run(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage) (contractx.RawOutput, error)
	RunStream(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage) *streamx.Stream[string]
}

// ThreadStore is the thread and message persistence the service needs.
// GetWithHistory returns messages newest first.
type ThreadStore interface {
	Resolve(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID, title string) (*store.ChatThread, error)
	AppendMessage(ctx context.Context, threadID uuid.UUID, role contractx.Role, content string, campaignID *uuid.UUID) (*store.ChatMessage, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]store.ChatThread, error)
	GetWithHistory(ctx context.Context, userID, threadID uuid.UUID, limit int) (*store.ChatThread, []store.ChatMessage, error)
}

// CampaignStore persists campaigns recognized in agent output.
type CampaignStore interface {
	Create(ctx context.Context, userID uuid.UUID, threadID *uuid.UUID, draft campaignx.Draft, userQuery string) (*store.Campaign, error)
}

// SendInput is one user turn.
type SendInput struct {
	UserID   uuid.UUID
	ThreadID *uuid.UUID
	Message  string
}

// ResponseKind discriminates the two possible assistant outputs.
type ResponseKind string

const (
	KindText     ResponseKind = "text"
	KindCampaign ResponseKind = "campaign"
)

// SendResult is the complete outcome of a blocking turn.
type SendResult struct {
	ThreadID uuid.UUID
	Kind     ResponseKind
	Message  string
	Campaign *store.Campaign
}

// MarshalJSON renders the wire shape {threadId, content} where content is
// the assistant text or the persisted campaign object.
func (r SendResult) MarshalJSON() ([]byte, error) {
	var content any = r.Message
	if r.Campaign != nil {
		content = r.Campaign
	}
	return json.Marshal(map[string]any{
		"threadId": r.ThreadID,
		"content":  content,
	})
}

// Event is one server-sent chunk of a streaming turn. The first event of
// every stream carries the thread id and an empty chunk so clients learn
// the thread id before any content arrives.
type Event struct {
	ThreadID uuid.UUID `json:"threadId"`
	Chunk    string    `json:"chunk"`
}

// Service is safe for concurrent use.
type Service struct {
	runner       AgentRunner
	threads      ThreadStore
	campaigns    CampaignStore
	historyLimit int
	log          zerolog.Logger
}

func NewService(runner AgentRunner, threads ThreadStore, campaigns CampaignStore) *Service {
	return &Service{
		runner:       runner,
		threads:      threads,
		campaigns:    campaigns,
		historyLimit: defaultHistoryLimit,
		log:          logx.Component("chat"),
	}
}

// Send runs one blocking turn. The user message is persisted before the
// agent run and retained even when the run fails; the assistant message
// and any campaign are persisted only on success.
func (s *Service) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	thread, history, err := s.begin(ctx, in)
	if err != nil {
		return nil, err
	}

	out, err := s.runner.Run(ctx, contractx.UserContext{UserID: in.UserID.String()}, history)
	if err != nil {
		return nil, err
	}

	result, err := s.finish(ctx, in, thread.ID, out.Text)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SendStream runs one streaming turn. Thread resolution and the user
// message persist synchronously so ownership errors surface before any
// event is emitted. Persistence of the assistant message happens after
// the model stream completes and before the stream finishes, so a
// completed stream implies a persisted turn.
func (s *Service) SendStream(ctx context.Context, in SendInput) (*streamx.Stream[Event], error) {
	thread, history, err := s.begin(ctx, in)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	out := streamx.New[Event](cancel)

	go func() {
		if !out.Push(Event{ThreadID: thread.ID}) {
			out.Finish(runCtx.Err())
			return
		}

		inner := s.runner.RunStream(runCtx, contractx.UserContext{UserID: in.UserID.String()}, history)
		defer inner.Close()

		var text []byte
		for {
			chunk, err := inner.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				// Model failure: the user message stays, the assistant
				// message is never written.
				out.Finish(err)
				return
			}
			text = append(text, chunk...)
			if !out.Push(Event{ThreadID: thread.ID, Chunk: chunk}) {
				// Consumer went away; drop the turn's output entirely.
				s.log.Debug().Str("thread_id", thread.ID.String()).Msg("stream consumer gone")
				out.Finish(runCtx.Err())
				return
			}
		}

		// The client may disconnect between the last chunk and here; the
		// turn is already complete, so persist regardless.
		persistCtx := context.WithoutCancel(runCtx)
		if _, err := s.finish(persistCtx, in, thread.ID, string(text)); err != nil {
			out.Finish(err)
			return
		}
		out.Finish(nil)
	}()

	return out, nil
}

// ListThreads returns the user's threads, most recently active first.
func (s *Service) ListThreads(ctx context.Context, userID uuid.UUID) ([]store.ChatThread, error) {
	return s.threads.ListByUser(ctx, userID)
}

// GetThread returns one thread with its most recent messages, newest
// first.
func (s *Service) GetThread(ctx context.Context, userID, threadID uuid.UUID) (*store.ChatThread, []store.ChatMessage, error) {
	return s.threads.GetWithHistory(ctx, userID, threadID, threadViewMessages)
}

// begin resolves the thread, persists the user message and assembles the
// model history ending with the new message.
func (s *Service) begin(ctx context.Context, in SendInput) (*store.ChatThread, []contractx.HistoryMessage, error) {
	var thread *store.ChatThread
	var prior []store.ChatMessage
	var err error

	if in.ThreadID != nil {
		thread, prior, err = s.threads.GetWithHistory(ctx, in.UserID, *in.ThreadID, s.historyLimit)
	} else {
		thread, err = s.threads.Resolve(ctx, in.UserID, nil, threadTitle(in.Message))
	}
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.threads.AppendMessage(ctx, thread.ID, contractx.RoleUser, in.Message, nil); err != nil {
		return nil, nil, err
	}

	// prior arrives newest first; the model wants chronological order.
	history := make([]contractx.HistoryMessage, 0, len(prior)+1)
	for i := len(prior) - 1; i >= 0; i-- {
		history = append(history, contractx.HistoryMessage{
			Role:    prior[i].Role,
			Content: prior[i].Message.Content,
		})
	}
	history = append(history, contractx.HistoryMessage{
		Role:    contractx.RoleUser,
		Content: in.Message,
	})
	return thread, history, nil
}

// finish classifies the agent output and persists the assistant side of
// the turn: the campaign first when one was produced, then the assistant
// message referencing it.
func (s *Service) finish(ctx context.Context, in SendInput, threadID uuid.UUID, text string) (*SendResult, error) {
	classified := campaignx.Classify(text)

	result := &SendResult{ThreadID: threadID}
	content := text
	var campaignID *uuid.UUID
	if classified.IsCampaign() {
		camp, err := s.campaigns.Create(ctx, in.UserID, &threadID, *classified.Draft, in.Message)
		if err != nil {
			return nil, fmt.Errorf("persist campaign: %w", err)
		}
		result.Kind = KindCampaign
		result.Campaign = camp
		campaignID = &camp.ID
		if canonical, err := classified.Draft.JSON(); err == nil {
			content = canonical
		}
		s.log.Info().
			Str("thread_id", threadID.String()).
			Str("campaign_id", camp.ID.String()).
			Msg("campaign generated")
	} else {
		result.Kind = KindText
		result.Message = classified.Text
	}

	if _, err := s.threads.AppendMessage(ctx, threadID, contractx.RoleAssistant, content, campaignID); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	return result, nil
}

func threadTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleRunes {
		return message
	}
	return string(runes[:titleRunes])
}
