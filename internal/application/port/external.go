package port

import "context"

// MovementCandidate is one ranked suggestion from the AI collaborator.
// Candidates are never inserted automatically; an explicit insert call is
// required to turn one into a movement.
type MovementCandidate struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence"`
}

// SuggestionContext carries the instance state handed to the suggester
type SuggestionContext struct {
	ClaimID            string
	PerilType          string
	PhaseName          string
	CompletedMovements []string
	RemainingMovements []string
	Context            string
}

// MovementSuggester defines the AI suggestion collaborator: synchronous
// and side-effect-free from the engine's point of view
type MovementSuggester interface {
	SuggestMovements(ctx context.Context, sc SuggestionContext) ([]MovementCandidate, error)
}
