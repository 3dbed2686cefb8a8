package flow

// NewInstanceMachine creates a state machine configured for the flow
// instance lifecycle: active until the final gate passes or the flow is
// cancelled, both terminal.
func NewInstanceMachine(initialState State) StateMachine {
	builder := NewBuilder()

	builder.Configure(StateActive).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerCancel, StateCancelled)

	// completed and cancelled are terminal, no outgoing transitions

	return builder.Build(initialState)
}
