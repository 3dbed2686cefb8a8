package flow

import (
	"context"
	"errors"
	"testing"
)

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		expected bool
	}{
		{StateActive, false},
		{StateCompleted, true},
		{StateCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsTerminal(); got != tt.expected {
				t.Errorf("State.IsTerminal() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"active", StateActive, true},
		{"completed", StateCompleted, true},
		{"cancelled", StateCancelled, true},
		{"unknown state", State("paused"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("paused"))
}

func TestBuilder_BuildPanicsOnInvalidInitialState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Build() should panic on invalid initial state")
		}
	}()

	builder.Build(State("paused"))
}

func TestStateMachine_Fire(t *testing.T) {
	tests := []struct {
		name      string
		initial   State
		trigger   Trigger
		wantState State
		wantErr   error
	}{
		{"complete from active", StateActive, TriggerComplete, StateCompleted, nil},
		{"cancel from active", StateActive, TriggerCancel, StateCancelled, nil},
		{"complete from completed", StateCompleted, TriggerComplete, StateCompleted, ErrInvalidTransition},
		{"cancel from completed", StateCompleted, TriggerCancel, StateCompleted, ErrInvalidTransition},
		{"complete from cancelled", StateCancelled, TriggerComplete, StateCancelled, ErrInvalidTransition},
		{"cancel from cancelled", StateCancelled, TriggerCancel, StateCancelled, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := NewInstanceMachine(tt.initial)

			err := machine.Fire(context.Background(), tt.trigger)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Fire() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("Fire() unexpected error: %v", err)
			}

			if machine.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", machine.State(), tt.wantState)
			}
		})
	}
}

func TestStateMachine_CanFire(t *testing.T) {
	machine := NewInstanceMachine(StateActive)

	if !machine.CanFire(TriggerComplete) {
		t.Error("CanFire(complete) should be true in active state")
	}
	if !machine.CanFire(TriggerCancel) {
		t.Error("CanFire(cancel) should be true in active state")
	}

	if err := machine.Fire(context.Background(), TriggerCancel); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}

	if machine.CanFire(TriggerComplete) {
		t.Error("CanFire(complete) should be false in cancelled state")
	}
}

func TestStateMachine_PermittedTriggers(t *testing.T) {
	machine := NewInstanceMachine(StateActive)

	triggers := machine.PermittedTriggers()
	if len(triggers) != 2 {
		t.Fatalf("PermittedTriggers() returned %d triggers, want 2", len(triggers))
	}

	machine = NewInstanceMachine(StateCompleted)
	if got := machine.PermittedTriggers(); len(got) != 0 {
		t.Errorf("PermittedTriggers() in terminal state = %v, want none", got)
	}
}

func TestStateMachine_PermitIfGuard(t *testing.T) {
	allow := false

	builder := NewBuilder()
	builder.Configure(StateActive).
		PermitIf(TriggerComplete, StateCompleted, func(ctx context.Context) bool {
			return allow
		})

	machine := builder.Build(StateActive)

	err := machine.Fire(context.Background(), TriggerComplete)
	if !errors.Is(err, ErrGuardFailed) {
		t.Fatalf("Fire() with failing guard error = %v, want %v", err, ErrGuardFailed)
	}
	if machine.State() != StateActive {
		t.Errorf("State() = %v, want %v after failed guard", machine.State(), StateActive)
	}

	allow = true
	if err := machine.Fire(context.Background(), TriggerComplete); err != nil {
		t.Fatalf("Fire() with passing guard unexpected error: %v", err)
	}
	if machine.State() != StateCompleted {
		t.Errorf("State() = %v, want %v", machine.State(), StateCompleted)
	}
}

func TestBuilder_BuiltMachinesAreIndependent(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateActive).
		Permit(TriggerCancel, StateCancelled)

	first := builder.Build(StateActive)
	second := builder.Build(StateActive)

	if err := first.Fire(context.Background(), TriggerCancel); err != nil {
		t.Fatalf("Fire() unexpected error: %v", err)
	}

	if second.State() != StateActive {
		t.Errorf("second machine state = %v, want %v", second.State(), StateActive)
	}
}
