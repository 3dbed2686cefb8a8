package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompt text and model parameters used by the
// movement suggester. Shipping it as YAML lets operators tune wording
// without a rebuild.
type PromptConfig struct {
	Suggestion struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"suggestion"`
}

// LoadPrompts loads prompt configuration from a YAML file
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	return &prompts, nil
}

// DefaultPrompts returns the built-in prompt set used when no prompts
// file is configured
func DefaultPrompts() *PromptConfig {
	p := &PromptConfig{}
	p.Suggestion.Temperature = 0.4
	p.Suggestion.MaxTokens = 1024
	p.Suggestion.System = "You are a senior property insurance field inspector. " +
		"Given the state of an in-progress inspection, suggest additional inspection " +
		"steps the adjuster should consider for this peril. Always respond with a valid " +
		"JSON object; never include commentary outside the JSON."
	p.Suggestion.UserTemplate = `An adjuster is inspecting a {{.PerilType}} claim and is currently in the "{{.PhaseName}}" phase.

Steps already done:
{{.Completed}}

Steps still planned:
{{.Remaining}}
{{if .Context}}
Adjuster's note: {{.Context}}
{{end}}
Suggest up to {{.MaxCandidates}} additional inspection steps that are commonly missed for this peril and are not already listed above. Respond with ONLY a JSON object of this exact structure:
{
  "movements": [
    {"name": string, "description": string, "reason": string, "confidence": number between 0.0 and 1.0}
  ]
}

Order the movements by confidence, highest first. Suggest nothing that duplicates an existing step.`
	return p
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
