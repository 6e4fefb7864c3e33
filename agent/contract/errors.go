package contract

import "errors"

var (
	// ErrModelInvoke wraps transport or API failures from the model provider.
	ErrModelInvoke = errors.New("model invoke failed")

	// ErrTriageCompleted means the triage agent finished a run without
	// handing off. That is a broken agent registry, not a user-facing
	// condition; it must fail loudly.
	ErrTriageCompleted = errors.New("triage agent completed without handoff")

	// ErrInvalidHandoff means an agent declared a handoff the registry does
	// not allow from its state.
	ErrInvalidHandoff = errors.New("handoff not allowed")

	// ErrRunBudgetExceeded guards against handoff/tool loops that never
	// reach a terminal output.
	ErrRunBudgetExceeded = errors.New("run exceeded turn budget")
)
