// Package orchestrator runs one conversational turn through the agent
// state machine: it drives the model, executes tool calls, performs
// handoffs, and returns (or streams) the terminal agent's output.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v2"
	"github.com/rs/zerolog"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	registryx "github.com/shoplight-ai/campaignchat/agent/registry"
	logx "github.com/shoplight-ai/campaignchat/pkg/logger"
	streamx "github.com/shoplight-ai/campaignchat/pkg/stream"
)

const (
	// handoffToolPrefix names the synthetic transfer tools exposed to the
	// model for each declared handoff edge.
	handoffToolPrefix = "transfer_to_"

	// defaultMaxTurns bounds model calls per run. A normal run takes two
	// or three; anything near the cap is a looping agent.
	defaultMaxTurns = 10
)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxTurns overrides the per-run model call budget.
func WithMaxTurns(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxTurns = n
		}
	}
}

// Orchestrator executes runs against a fixed registry. It is safe for
// concurrent use; each run keeps its own message list.
type Orchestrator struct {
	client   *openai.Client
	reg      *registryx.Registry
	gateway  contractx.StoreDataGateway
	maxTurns int
	log      zerolog.Logger
}

func New(client *openai.Client, reg *registryx.Registry, gateway contractx.StoreDataGateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		reg:      reg,
		gateway:  gateway,
		maxTurns: defaultMaxTurns,
		log:      logx.Component("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes a full turn and blocks until the terminal agent has
// produced its complete output.
func (o *Orchestrator) Run(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage) (contractx.RawOutput, error) {
	return o.run(ctx, user, history, nil)
}

// RunStream executes a full turn, pushing the terminal agent's content
// deltas into the returned stream as they arrive. The stream finishes
// with io.EOF on success or the run error otherwise. Closing the stream
// cancels the underlying model requests.
func (o *Orchestrator) RunStream(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage) *streamx.Stream[string] {
	runCtx, cancel := context.WithCancel(ctx)
	s := streamx.New[string](cancel)

	go func() {
		_, err := o.run(runCtx, user, history, s.Push)
		s.Finish(err)
	}()

	return s
}

func (o *Orchestrator) run(ctx context.Context, user contractx.UserContext, history []contractx.HistoryMessage, push func(string) bool) (contractx.RawOutput, error) {
	active := o.reg.Entry()

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	msgs = append(msgs, openai.SystemMessage(active.Instructions))
	for _, m := range history {
		if m.Role == contractx.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	for turn := 0; turn < o.maxTurns; turn++ {
		msg, err := o.invoke(ctx, active, msgs, push)
		if err != nil {
			return contractx.RawOutput{}, err
		}

		if len(msg.ToolCalls) == 0 {
			if active.Output == contractx.ShapeNone {
				return contractx.RawOutput{}, fmt.Errorf("%w: agent %s", contractx.ErrTriageCompleted, active.Name)
			}
			o.log.Debug().
				Str("agent", string(active.Name)).
				Int("turns", turn+1).
				Msg("run completed")
			return contractx.RawOutput{
				Agent: active.Name,
				Shape: active.Output,
				Text:  msg.Content,
			}, nil
		}

		msgs = append(msgs, msg.ToParam())

		var pending contractx.AgentName
		var forced bool
		for _, call := range msg.ToolCalls {
			name := call.Function.Name
			switch {
			case name == registryx.ToolFetchStoreData:
				content, insufficient := o.fetchStoreData(ctx, user)
				msgs = append(msgs, openai.ToolMessage(content, call.ID))
				if insufficient {
					forced = true
				}
			case strings.HasPrefix(name, handoffToolPrefix):
				target := contractx.AgentName(strings.TrimPrefix(name, handoffToolPrefix))
				msgs = append(msgs, openai.ToolMessage(fmt.Sprintf(`{"assistant": %q}`, target), call.ID))
				if pending == "" {
					pending = target
				}
			default:
				o.log.Warn().
					Str("agent", string(active.Name)).
					Str("tool", name).
					Msg("model called an undeclared tool")
				msgs = append(msgs, openai.ToolMessage(`{"error": "unknown tool"}`, call.ID))
			}
		}

		// Insufficient data is not negotiable: the responder takes over
		// regardless of what the model asked for.
		if forced {
			pending = contractx.AgentInsufficientData
		}
		if pending != "" {
			next, err := o.reg.Resolve(active.Name, pending)
			if err != nil {
				return contractx.RawOutput{}, err
			}
			o.log.Debug().
				Str("from", string(active.Name)).
				Str("to", string(next.Name)).
				Bool("forced", forced).
				Msg("handoff")
			active = next
			msgs[0] = openai.SystemMessage(active.Instructions)
		}
	}

	return contractx.RawOutput{}, fmt.Errorf("%w: %d model calls", contractx.ErrRunBudgetExceeded, o.maxTurns)
}

// invoke performs one model call for the active agent. With a push
// callback it uses the streaming API and relays content deltas, except
// for agents with no declared output shape, whose text is never
// user-facing.
func (o *Orchestrator) invoke(ctx context.Context, active registryx.Definition, msgs []openai.ChatCompletionMessageParamUnion, push func(string) bool) (openai.ChatCompletionMessage, error) {
	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(active.Settings.Model),
		Messages:            msgs,
		Temperature:         openai.Float(active.Settings.Temperature),
		MaxCompletionTokens: openai.Int(active.Settings.MaxCompletionTokens),
		Tools:               o.toolsFor(active),
	}

	if push == nil || active.Output == contractx.ShapeNone {
		resp, err := o.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, active.Name, err)
		}
		if len(resp.Choices) == 0 {
			return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: empty completion", contractx.ErrModelInvoke, active.Name)
		}
		return resp.Choices[0].Message, nil
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if !push(delta) {
				return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: consumer gone", contractx.ErrModelInvoke, active.Name)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: %v", contractx.ErrModelInvoke, active.Name, err)
	}
	if len(acc.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: empty completion", contractx.ErrModelInvoke, active.Name)
	}
	return acc.Choices[0].Message, nil
}

// fetchStoreData calls the gateway with the authenticated user id and
// renders the tool result for the model. Gateway failures degrade to
// "no data"; the run must still reach a user-facing answer.
func (o *Orchestrator) fetchStoreData(ctx context.Context, user contractx.UserContext) (content string, insufficient bool) {
	snap, err := o.gateway.FetchSnapshot(ctx, user.UserID)
	if err != nil {
		o.log.Warn().Err(err).Str("user_id", user.UserID).Msg("store data fetch failed")
		snap = nil
	}
	if snap == nil {
		return "null", true
	}
	b, err := json.Marshal(snap)
	if err != nil {
		o.log.Error().Err(err).Msg("snapshot marshal failed")
		return "null", true
	}
	return string(b), false
}

func (o *Orchestrator) toolsFor(d registryx.Definition) []openai.ChatCompletionToolUnionParam {
	noArgs := openai.FunctionParameters{
		"type":                 "object",
		"properties":           map[string]any{},
		"additionalProperties": false,
	}

	var tools []openai.ChatCompletionToolUnionParam
	for _, t := range d.Tools {
		if t != registryx.ToolFetchStoreData {
			continue
		}
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        registryx.ToolFetchStoreData,
			Description: openai.String("Fetch the authenticated user's store data snapshot. Takes no arguments."),
			Parameters:  noArgs,
		}))
	}
	for _, h := range d.Handoffs {
		tools = append(tools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        handoffToolPrefix + string(h),
			Description: openai.String(fmt.Sprintf("Hand the conversation off to the %s agent.", h)),
			Parameters:  noArgs,
		}))
	}
	return tools
}
