// Package registry declares the fixed set of agents and their directed
// handoff edges. The registry is an immutable value built once at
// composition time and shared by all turns.
package registry

import (
	"fmt"

	contractx "github.com/shoplight-ai/campaignchat/agent/contract"
	llmx "github.com/shoplight-ai/campaignchat/agent/llm"
	promptx "github.com/shoplight-ai/campaignchat/agent/prompt"
)

// ToolFetchStoreData is the only domain tool any agent declares. It takes
// no model-controlled arguments; the orchestrator binds the authenticated
// user id itself.
const ToolFetchStoreData = "fetch_store_data"

// Definition describes one agent: instructions, resolved model settings,
// declared output shape, tools, and allowed handoff targets.
type Definition struct {
	Name         contractx.AgentName
	Instructions string
	Settings     llmx.Settings
	Output       contractx.OutputShape
	Tools        []string
	Handoffs     []contractx.AgentName
}

// Registry holds the agent state machine: an entry state plus the
// definitions and their edges.
type Registry struct {
	entry contractx.AgentName
	defs  map[contractx.AgentName]Definition
}

// New builds and validates the registry. The shape is fixed:
// triage -> campaign_generator | general_chat, and
// campaign_generator -> insufficient_data_responder.
func New(cfg llmx.Config, prompts promptx.Set) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	defs := []Definition{
		{
			Name:         contractx.AgentTriage,
			Instructions: prompts.Triage,
			Settings:     cfg.For(contractx.AgentTriage),
			Output:       contractx.ShapeNone,
			Handoffs: []contractx.AgentName{
				contractx.AgentCampaignGenerator,
				contractx.AgentGeneralChat,
			},
		},
		{
			Name:         contractx.AgentCampaignGenerator,
			Instructions: prompts.CampaignGenerator,
			Settings:     cfg.For(contractx.AgentCampaignGenerator),
			Output:       contractx.ShapeCampaign,
			Tools:        []string{ToolFetchStoreData},
			Handoffs: []contractx.AgentName{
				contractx.AgentInsufficientData,
			},
		},
		{
			Name:         contractx.AgentGeneralChat,
			Instructions: prompts.GeneralChat,
			Settings:     cfg.For(contractx.AgentGeneralChat),
			Output:       contractx.ShapeText,
		},
		{
			Name:         contractx.AgentInsufficientData,
			Instructions: prompts.InsufficientData,
			Settings:     cfg.For(contractx.AgentInsufficientData),
			Output:       contractx.ShapeText,
		},
	}

	r := &Registry{
		entry: contractx.AgentTriage,
		defs:  make(map[contractx.AgentName]Definition, len(defs)),
	}
	for _, d := range defs {
		r.defs[d.Name] = d
	}

	if err := r.validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Entry returns the initial agent of every run.
func (r *Registry) Entry() Definition {
	return r.defs[r.entry]
}

// Get looks up a definition by name.
func (r *Registry) Get(name contractx.AgentName) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// Resolve is the transition function of the state machine: it validates
// that from may hand off to target and returns the target definition.
func (r *Registry) Resolve(from, target contractx.AgentName) (Definition, error) {
	src, ok := r.defs[from]
	if !ok {
		return Definition{}, fmt.Errorf("%w: unknown agent %q", contractx.ErrInvalidHandoff, from)
	}
	for _, h := range src.Handoffs {
		if h == target {
			return r.defs[target], nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s -> %s", contractx.ErrInvalidHandoff, from, target)
}

func (r *Registry) validate() error {
	entry, ok := r.defs[r.entry]
	if !ok {
		return fmt.Errorf("entry agent %q is not defined", r.entry)
	}
	if len(entry.Handoffs) == 0 {
		return fmt.Errorf("entry agent %q must declare handoffs", r.entry)
	}
	if entry.Output != contractx.ShapeNone {
		return fmt.Errorf("entry agent %q must not declare an output shape", r.entry)
	}

	for name, d := range r.defs {
		if d.Instructions == "" {
			return fmt.Errorf("agent %q has no instructions", name)
		}
		if name != r.entry && d.Output == contractx.ShapeNone {
			return fmt.Errorf("agent %q must declare an output shape", name)
		}
		for _, h := range d.Handoffs {
			if _, ok := r.defs[h]; !ok {
				return fmt.Errorf("agent %q hands off to undefined agent %q", name, h)
			}
		}
	}
	return nil
}
