package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/verisite/fieldflow/internal/application/port"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Suggester implements port.MovementSuggester using OpenAI chat completions
type Suggester struct {
	client        *openai.Client
	prompts       *PromptConfig
	model         string
	maxCandidates int
	logger        *zap.Logger
}

// NewSuggester creates a suggester backed by the OpenAI API. baseURL is
// optional and overrides the default endpoint for proxies and compatible
// providers.
func NewSuggester(apiKey, baseURL, model string, timeout time.Duration, maxCandidates int, prompts *PromptConfig, logger *zap.Logger) *Suggester {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return NewSuggesterWithClient(openai.NewClientWithConfig(cfg), model, maxCandidates, prompts, logger)
}

// NewSuggesterWithClient wires a preconfigured client, used when the
// transport needs customizing
func NewSuggesterWithClient(client *openai.Client, model string, maxCandidates int, prompts *PromptConfig, logger *zap.Logger) *Suggester {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &Suggester{
		client:        client,
		prompts:       prompts,
		model:         model,
		maxCandidates: maxCandidates,
		logger:        logger,
	}
}

// suggestionPayload is the JSON shape the model is instructed to return
type suggestionPayload struct {
	Movements []port.MovementCandidate `json:"movements"`
}

// SuggestMovements asks the model for additional inspection steps given the
// current state of the flow. The call is synchronous and never mutates
// engine state; callers decide what to do with the candidates.
func (s *Suggester) SuggestMovements(ctx context.Context, sc port.SuggestionContext) ([]port.MovementCandidate, error) {
	s.logger.Debug("Requesting movement suggestions",
		zap.String("claim_id", sc.ClaimID),
		zap.String("peril_type", sc.PerilType),
		zap.String("phase_name", sc.PhaseName))

	prompt, err := s.buildSuggestionPrompt(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to build suggestion prompt: %w", err)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.model,
		Temperature: s.prompts.Suggestion.Temperature,
		MaxTokens:   s.prompts.Suggestion.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: s.prompts.Suggestion.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		s.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		// Fallback: try to extract JSON from markdown code blocks
		jsonStr := extractJSON(content)
		if jsonStr == "" {
			s.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonStr), &payload); err != nil {
			s.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		s.logger.Info("Extracted JSON from response")
	}

	candidates := s.sanitize(payload.Movements)

	s.logger.Info("Movement suggestions received",
		zap.String("claim_id", sc.ClaimID),
		zap.Int("candidate_count", len(candidates)))

	return candidates, nil
}

// suggestionPromptData feeds the user prompt template
type suggestionPromptData struct {
	PerilType     string
	PhaseName     string
	Completed     string
	Remaining     string
	Context       string
	MaxCandidates int
}

func (s *Suggester) buildSuggestionPrompt(sc port.SuggestionContext) (string, error) {
	return renderTemplate(s.prompts.Suggestion.UserTemplate, suggestionPromptData{
		PerilType:     sc.PerilType,
		PhaseName:     sc.PhaseName,
		Completed:     formatSteps(sc.CompletedMovements),
		Remaining:     formatSteps(sc.RemainingMovements),
		Context:       sc.Context,
		MaxCandidates: s.maxCandidates,
	})
}

// formatSteps renders movement names as a bullet list for the prompt
func formatSteps(names []string) string {
	if len(names) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(name)
	}
	return b.String()
}

// sanitize drops candidates without a name, clamps confidence into [0, 1]
// and caps the list at maxCandidates
func (s *Suggester) sanitize(candidates []port.MovementCandidate) []port.MovementCandidate {
	out := make([]port.MovementCandidate, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if c.Confidence < 0 {
			c.Confidence = 0
		}
		if c.Confidence > 1 {
			c.Confidence = 1
		}
		out = append(out, c)
		if len(out) == s.maxCandidates {
			break
		}
	}
	return out
}

// extractJSON extracts JSON from markdown code blocks
func extractJSON(content string) string {
	start := findJSONStart(content)
	if start < 0 {
		return ""
	}
	end := findJSONEnd(content, start)
	if end <= start {
		return ""
	}
	return content[start:end]
}

// findJSONStart finds the start of JSON content in a string
func findJSONStart(content string) int {
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			return i
		}
	}
	return -1
}

// findJSONEnd finds the end of JSON content starting at a given position
func findJSONEnd(content string, start int) int {
	if start < 0 || start >= len(content) || content[start] != '{' {
		return -1
	}

	braceCount := 0
	inString := false
	escapeNext := false

	for i := start; i < len(content); i++ {
		char := content[i]

		if escapeNext {
			escapeNext = false
			continue
		}

		if char == '\\' {
			escapeNext = true
			continue
		}

		if char == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if char == '{' {
			braceCount++
		} else if char == '}' {
			braceCount--
			if braceCount == 0 {
				return i + 1
			}
		}
	}

	return -1
}
