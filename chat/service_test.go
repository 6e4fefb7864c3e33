package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	campaignx "github.com/shoplight-ai/campaignchat/campaign"
	streamx "github.com/shoplight-ai/campaignchat/pkg/stream"
	"github.com/shoplight-ai/campaignchat/store"
)

const campaignJSON = `{
	"campaign_title": "Spring Sale Blast",
	"target_audience": "Returning customers",
	"message": {"headline": "Spring is here", "body": "Save 20% this week."},
	"channels": ["email", "sms"],
	"timeline": {"start_date": "2026-03-01", "end_date": "2026-03-14"},
	"budget": "$500",
	"expected_metrics": {"open_rate": 0.4, "click_rate": 0.1, "conversion_rate": 0.03, "roi": 2.5}
}`

type fakeRunner struct {
	out    contractx.RawOutput
	err    error
	chunks []string

	mu      sync.Mutex
	history []contractx.HistoryMessage
	user    contractx.UserContext
	done    chan struct{}
}

func (f *fakeRunner) record(user contractx.UserContext, history []contractx.HistoryMessage) {
	f.mu.Lock()
	f.user = user
	f.history = history
	f.mu.Unlock()
}

func (f *fakeRunner) Run(_ context.Context, user contractx.UserContext, history []contractx.HistoryMessage) (contractx.RawOutput, error) {
	f.record(user, history)
	return f.out, f.err
}

func (f *fakeRunner) RunStream(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage) *streamx.Stream[string] {
	f.record(user, history)

	_, cancel := context.WithCancel(ctx)
	s := streamx.New[string](cancel)
	go func() {
		defer func() {
			if f.done != nil {
				close(f.done)
			}
		}()
		for _, c := range f.chunks {
			if !s.Push(c) {
				return
			}
		}
		s.Finish(f.err)
	}()
	return s
}

type fakeThreadStore struct {
	mu       sync.Mutex
	threads  map[uuid.UUID]*store.ChatThread
	messages map[uuid.UUID][]store.ChatMessage
}

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{
		threads:  make(map[uuid.UUID]*store.ChatThread),
		messages: make(map[uuid.UUID][]store.ChatMessage),
	}
}

func (f *fakeThreadStore) Resolve(_ context.Context, userID uuid.UUID, threadID *uuid.UUID, title string) (*store.ChatThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if threadID != nil {
		t, ok := f.threads[*threadID]
		if !ok || t.UserID != userID {
			return nil, store.ErrThreadNotFound
		}
		return t, nil
	}
	t := &store.ChatThread{ID: uuid.New(), UserID: userID, Title: title, CreatedAt: time.Now()}
	f.threads[t.ID] = t
	return t, nil
}

func (f *fakeThreadStore) AppendMessage(_ context.Context, threadID uuid.UUID, role contractx.Role, content string, campaignID *uuid.UUID) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := store.ChatMessage{
		ID:         uuid.New(),
		ThreadID:   threadID,
		Role:       role,
		Message:    store.MessageBody{Content: content},
		CampaignID: campaignID,
	}
	f.messages[threadID] = append(f.messages[threadID], m)
	return &m, nil
}

func (f *fakeThreadStore) ListByUser(_ context.Context, userID uuid.UUID) ([]store.ChatThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ChatThread, 0)
	for _, t := range f.threads {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

// GetWithHistory mirrors the real store: newest message first.
func (f *fakeThreadStore) GetWithHistory(_ context.Context, userID, threadID uuid.UUID, _ int) (*store.ChatThread, []store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.threads[threadID]
	if !ok || t.UserID != userID {
		return nil, nil, store.ErrThreadNotFound
	}
	stored := f.messages[threadID]
	out := make([]store.ChatMessage, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return t, out, nil
}

func (f *fakeThreadStore) messageCount(threadID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[threadID])
}

type createdCampaign struct {
	userID    uuid.UUID
	threadID  *uuid.UUID
	draft     campaignx.Draft
	userQuery string
}

type fakeCampaignStore struct {
	mu      sync.Mutex
	created []createdCampaign
}

func (f *fakeCampaignStore) Create(_ context.Context, userID uuid.UUID, threadID *uuid.UUID, draft campaignx.Draft, userQuery string) (*store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, createdCampaign{userID: userID, threadID: threadID, draft: draft, userQuery: userQuery})
	return &store.Campaign{ID: uuid.New(), UserID: userID, ThreadID: threadID, Title: draft.Title}, nil
}

func (f *fakeCampaignStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func TestSendTextTurnCreatesThread(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: contractx.RawOutput{
		Agent: contractx.AgentGeneralChat,
		Shape: contractx.ShapeText,
		Text:  "Email works well for flash sales.",
	}}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	userID := uuid.New()
	res, err := svc.Send(context.Background(), SendInput{UserID: userID, Message: "what channel should I use?"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Kind != KindText {
		t.Fatalf("kind = %s, want text", res.Kind)
	}
	if res.Message != runner.out.Text {
		t.Fatalf("message = %q", res.Message)
	}
	if got := threads.messageCount(res.ThreadID); got != 2 {
		t.Fatalf("persisted %d messages, want user + assistant", got)
	}
	if campaigns.count() != 0 {
		t.Fatal("text turn must not create a campaign")
	}
	if runner.user.UserID != userID.String() {
		t.Fatalf("runner saw user %q", runner.user.UserID)
	}
}

func TestSendCampaignTurnPersistsCampaign(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: contractx.RawOutput{
		Agent: contractx.AgentCampaignGenerator,
		Shape: contractx.ShapeCampaign,
		Text:  campaignJSON,
	}}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	userID := uuid.New()
	query := "make me a spring campaign"
	res, err := svc.Send(context.Background(), SendInput{UserID: userID, Message: query})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Kind != KindCampaign {
		t.Fatalf("kind = %s, want campaign", res.Kind)
	}
	if res.Campaign == nil || res.Campaign.Title != "Spring Sale Blast" {
		t.Fatalf("campaign = %+v", res.Campaign)
	}
	if campaigns.count() != 1 {
		t.Fatalf("created %d campaigns, want 1", campaigns.count())
	}
	created := campaigns.created[0]
	if created.userQuery != query {
		t.Fatalf("campaign user query = %q, want the triggering message", created.userQuery)
	}
	if created.threadID == nil || *created.threadID != res.ThreadID {
		t.Fatal("campaign not linked to the thread")
	}
	if got := threads.messageCount(res.ThreadID); got != 2 {
		t.Fatalf("persisted %d messages, want user + assistant", got)
	}

	_, msgs, _ := threads.GetWithHistory(context.Background(), userID, res.ThreadID, 0)
	assistant := msgs[0]
	if assistant.CampaignID == nil || *assistant.CampaignID != res.Campaign.ID {
		t.Fatal("assistant message not linked to the created campaign")
	}
	var draft campaignx.Draft
	if err := json.Unmarshal([]byte(assistant.Message.Content), &draft); err != nil {
		t.Fatalf("assistant content is not the serialized campaign: %v", err)
	}
	if draft.Title != "Spring Sale Blast" {
		t.Fatalf("serialized campaign title = %q", draft.Title)
	}
}

func TestSendRunErrorKeepsUserMessage(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("model unavailable")}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	userID := uuid.New()
	_, err := svc.Send(context.Background(), SendInput{UserID: userID, Message: "hello"})
	if err == nil {
		t.Fatal("Send() succeeded, want the run error")
	}

	list, _ := threads.ListByUser(context.Background(), userID)
	if len(list) != 1 {
		t.Fatalf("threads = %d, want 1", len(list))
	}
	if got := threads.messageCount(list[0].ID); got != 1 {
		t.Fatalf("persisted %d messages, want only the user message", got)
	}
	if campaigns.count() != 0 {
		t.Fatal("failed turn must not create a campaign")
	}
}

func TestSendReplaysThreadHistory(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{out: contractx.RawOutput{Shape: contractx.ShapeText, Text: "sure"}}
	threads := newFakeThreadStore()
	svc := NewService(runner, threads, &fakeCampaignStore{})

	userID := uuid.New()
	thread, _ := threads.Resolve(context.Background(), userID, nil, "earlier")
	_, _ = threads.AppendMessage(context.Background(), thread.ID, contractx.RoleUser, "first question", nil)
	_, _ = threads.AppendMessage(context.Background(), thread.ID, contractx.RoleAssistant, "first answer", nil)

	_, err := svc.Send(context.Background(), SendInput{UserID: userID, ThreadID: &thread.ID, Message: "follow up"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	want := []contractx.HistoryMessage{
		{Role: contractx.RoleUser, Content: "first question"},
		{Role: contractx.RoleAssistant, Content: "first answer"},
		{Role: contractx.RoleUser, Content: "follow up"},
	}
	if len(runner.history) != len(want) {
		t.Fatalf("history length = %d, want %d", len(runner.history), len(want))
	}
	for i, m := range want {
		if runner.history[i] != m {
			t.Fatalf("history[%d] = %+v, want %+v", i, runner.history[i], m)
		}
	}
}

func TestSendRejectsForeignThread(t *testing.T) {
	t.Parallel()

	threads := newFakeThreadStore()
	svc := NewService(&fakeRunner{}, threads, &fakeCampaignStore{})

	owner := uuid.New()
	thread, _ := threads.Resolve(context.Background(), owner, nil, "private")

	_, err := svc.Send(context.Background(), SendInput{UserID: uuid.New(), ThreadID: &thread.ID, Message: "hi"})
	if !errors.Is(err, store.ErrThreadNotFound) {
		t.Fatalf("error = %v, want ErrThreadNotFound", err)
	}
}

func TestSendStreamRelaysChunksAndPersists(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{chunks: []string{"Email ", "works ", "well."}}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	userID := uuid.New()
	s, err := svc.SendStream(context.Background(), SendInput{UserID: userID, Message: "which channel?"})
	if err != nil {
		t.Fatalf("SendStream() error = %v", err)
	}
	defer s.Close()

	var events []Event
	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 4 {
		t.Fatalf("got %d events, want thread id event plus 3 chunks", len(events))
	}
	if events[0].Chunk != "" || events[0].ThreadID == uuid.Nil {
		t.Fatalf("first event = %+v, want thread id with empty chunk", events[0])
	}
	var sb strings.Builder
	for _, ev := range events[1:] {
		sb.WriteString(ev.Chunk)
	}
	if sb.String() != "Email works well." {
		t.Fatalf("streamed text = %q", sb.String())
	}

	// EOF arrives only after persistence.
	threadID := events[0].ThreadID
	if got := threads.messageCount(threadID); got != 2 {
		t.Fatalf("persisted %d messages, want user + assistant", got)
	}
	_, msgs, _ := threads.GetWithHistory(context.Background(), userID, threadID, 0)
	if msgs[0].Message.Content != "Email works well." {
		t.Fatalf("assistant message = %q", msgs[0].Message.Content)
	}
}

func TestSendStreamCampaignPersistedAfterStream(t *testing.T) {
	t.Parallel()

	half := len(campaignJSON) / 2
	runner := &fakeRunner{chunks: []string{campaignJSON[:half], campaignJSON[half:]}}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	s, err := svc.SendStream(context.Background(), SendInput{UserID: uuid.New(), Message: "spring campaign please"})
	if err != nil {
		t.Fatalf("SendStream() error = %v", err)
	}
	defer s.Close()

	for {
		if _, err := s.Recv(); errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
	}

	if campaigns.count() != 1 {
		t.Fatalf("created %d campaigns, want 1", campaigns.count())
	}
	if campaigns.created[0].draft.Title != "Spring Sale Blast" {
		t.Fatalf("campaign title = %q", campaigns.created[0].draft.Title)
	}
}

func TestSendStreamModelErrorSkipsAssistantPersist(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{chunks: []string{"partial "}, err: fmt.Errorf("%w: boom", contractx.ErrModelInvoke)}
	threads := newFakeThreadStore()
	svc := NewService(runner, threads, &fakeCampaignStore{})

	userID := uuid.New()
	s, err := svc.SendStream(context.Background(), SendInput{UserID: userID, Message: "hi"})
	if err != nil {
		t.Fatalf("SendStream() error = %v", err)
	}
	defer s.Close()

	var threadID uuid.UUID
	for {
		ev, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				t.Fatal("stream finished cleanly, want the model error")
			}
			if !errors.Is(err, contractx.ErrModelInvoke) {
				t.Fatalf("error = %v, want ErrModelInvoke", err)
			}
			break
		}
		if threadID == uuid.Nil {
			threadID = ev.ThreadID
		}
	}

	if got := threads.messageCount(threadID); got != 1 {
		t.Fatalf("persisted %d messages, want only the user message", got)
	}
}

func TestSendStreamConsumerCloseDropsTurn(t *testing.T) {
	t.Parallel()

	// Far more chunks than the stream buffer holds, so the relay is still
	// mid-flight when the consumer walks away.
	chunks := make([]string, 100)
	for i := range chunks {
		chunks[i] = "x"
	}
	runner := &fakeRunner{chunks: chunks, done: make(chan struct{})}
	threads := newFakeThreadStore()
	campaigns := &fakeCampaignStore{}
	svc := NewService(runner, threads, campaigns)

	userID := uuid.New()
	s, err := svc.SendStream(context.Background(), SendInput{UserID: userID, Message: "hi"})
	if err != nil {
		t.Fatalf("SendStream() error = %v", err)
	}

	first, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	s.Close()

	select {
	case <-runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("inner stream was not shut down after consumer close")
	}

	if got := threads.messageCount(first.ThreadID); got != 1 {
		t.Fatalf("persisted %d messages, want only the user message", got)
	}
	if campaigns.count() != 0 {
		t.Fatal("abandoned turn must not create a campaign")
	}
}

func TestThreadTitleTruncation(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("日", 60)
	if got := threadTitle(long); len([]rune(got)) != 50 {
		t.Fatalf("title runes = %d, want 50", len([]rune(got)))
	}
	if got := threadTitle("short"); got != "short" {
		t.Fatalf("short title = %q", got)
	}
}
