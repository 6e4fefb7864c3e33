package registry

import (
	"errors"
	"testing"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	llmx "github.com/shoplight-ai/campaignchat/agent/llm"
	promptx "github.com/shoplight-ai/campaignchat/agent/prompt"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := New(llmx.Config{Model: "gpt-5-nano"}, promptx.LoadSet())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func TestEntryIsTriage(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	entry := r.Entry()
	if entry.Name != contractx.AgentTriage {
		t.Fatalf("Entry().Name = %s, want triage", entry.Name)
	}
	if entry.Output != contractx.ShapeNone {
		t.Fatalf("triage must not declare an output shape, got %s", entry.Output)
	}
	if len(entry.Handoffs) != 2 {
		t.Fatalf("triage handoffs = %d, want 2", len(entry.Handoffs))
	}
}

func TestEveryNonEntryAgentDeclaresOutput(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	for _, name := range []contractx.AgentName{
		contractx.AgentCampaignGenerator,
		contractx.AgentGeneralChat,
		contractx.AgentInsufficientData,
	} {
		d, ok := r.Get(name)
		if !ok {
			t.Fatalf("agent %s not defined", name)
		}
		if d.Output == contractx.ShapeNone {
			t.Fatalf("agent %s has no output shape", name)
		}
	}
}

func TestResolveFollowsDeclaredEdges(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	next, err := r.Resolve(contractx.AgentTriage, contractx.AgentCampaignGenerator)
	if err != nil {
		t.Fatalf("Resolve(triage -> generator) error = %v", err)
	}
	if next.Output != contractx.ShapeCampaign {
		t.Fatalf("generator output = %s, want campaign", next.Output)
	}

	if _, err := r.Resolve(contractx.AgentGeneralChat, contractx.AgentCampaignGenerator); !errors.Is(err, contractx.ErrInvalidHandoff) {
		t.Fatalf("expected ErrInvalidHandoff for undeclared edge, got %v", err)
	}
	if _, err := r.Resolve(contractx.AgentTriage, contractx.AgentInsufficientData); !errors.Is(err, contractx.ErrInvalidHandoff) {
		t.Fatalf("triage must not hand off to the responder directly, got %v", err)
	}
}

func TestGeneratorDeclaresStoreDataTool(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	d, _ := r.Get(contractx.AgentCampaignGenerator)
	if len(d.Tools) != 1 || d.Tools[0] != ToolFetchStoreData {
		t.Fatalf("generator tools = %v, want [%s]", d.Tools, ToolFetchStoreData)
	}
}

func TestNewRejectsEmptyModel(t *testing.T) {
	t.Parallel()

	if _, err := New(llmx.Config{}, promptx.LoadSet()); err == nil {
		t.Fatal("New() accepted an empty default model")
	}
}
