package classify

import (
	"encoding/json"
	"strings"
)

// DefaultModelID is used when no model identifier is configured.
const DefaultModelID = "us.amazon.nova-lite-v1:0"

// FallbackFamily names the arm used for unrecognized model identifiers.
const FallbackFamily = "fallback"

const (
	maxTokens   = 500
	temperature = 0.2
	topP        = 0.9

	novaMaxTokens   = 150
	novaTemperature = 0.7

	bedrockAnthropicVersion = "bedrock-2023-05-31"
)

// Request is a model-family-shaped inference payload. Body is opaque to the
// pipeline; only the owning family knows its shape.
type Request struct {
	Family string
	// Known is false when no family matched and the fallback shape was used.
	// The inference service may reject such a request.
	Known bool
	Body  map[string]any
}

// Marshal serializes the body. Map keys are emitted in sorted order so the
// bytes are deterministic for a given prompt.
func (r Request) Marshal() ([]byte, error) {
	return json.Marshal(r.Body)
}

// family is one arm of the request dispatch table.
type family struct {
	name     string
	prefixes []string
	build    func(prompt string) map[string]any
}

func (f family) matches(modelID string) bool {
	for _, p := range f.prefixes {
		if strings.HasPrefix(modelID, p) {
			return true
		}
	}
	return false
}

// families is evaluated in order; the first match wins.
var families = []family{
	{
		name:     "claude-3",
		prefixes: []string{"anthropic.claude-3"},
		build: func(prompt string) map[string]any {
			return map[string]any{
				"anthropic_version": bedrockAnthropicVersion,
				"messages": []any{
					map[string]any{
						"role": "user",
						"content": []any{
							map[string]any{"type": "text", "text": prompt},
						},
					},
				},
				"max_tokens":  maxTokens,
				"temperature": temperature,
				"top_p":       topP,
			}
		},
	},
	{
		name:     "claude-legacy",
		prefixes: []string{"anthropic.claude-v2", "anthropic.claude-instant"},
		build: func(prompt string) map[string]any {
			return map[string]any{
				"prompt":               "\n\nHuman: " + prompt + "\n\nAssistant:",
				"max_tokens_to_sample": maxTokens,
				"temperature":          temperature,
				"top_p":                topP,
			}
		},
	},
	{
		name:     "titan-text",
		prefixes: []string{"amazon.titan-text"},
		build: func(prompt string) map[string]any {
			return map[string]any{
				"inputText": prompt,
				"textGenerationConfig": map[string]any{
					"maxTokenCount": maxTokens,
					"temperature":   temperature,
					"topP":          topP,
				},
			}
		},
	},
	{
		name:     "nova-lite",
		prefixes: []string{"us.amazon.nova-lite"},
		build: func(prompt string) map[string]any {
			return map[string]any{
				"messages": []any{
					map[string]any{
						"role": "user",
						"content": []any{
							map[string]any{"text": prompt},
						},
					},
				},
				"inferenceConfig": map[string]any{
					"maxTokens":   novaMaxTokens,
					"temperature": novaTemperature,
					"topP":        topP,
				},
			}
		},
	},
}

var fallback = family{
	name: FallbackFamily,
	build: func(prompt string) map[string]any {
		return map[string]any{
			"messages": []any{
				map[string]any{
					"role": "user",
					"content": []any{
						map[string]any{"type": "text", "text": prompt},
					},
				},
			},
			"inferenceConfig": map[string]any{
				"maxTokens":   maxTokens,
				"temperature": temperature,
				"topP":        topP,
			},
		}
	},
}

// FamilyOf returns the family name that owns modelID, and whether it was a
// recognized family rather than the fallback.
func FamilyOf(modelID string) (string, bool) {
	f, ok := lookup(modelID)
	return f.name, ok
}

// BuildRequest maps a model identifier and prompt to the payload shape that
// model family expects. It never fails: unknown identifiers get a
// best-effort chat-style body and Known=false.
func BuildRequest(modelID, prompt string) Request {
	f, ok := lookup(modelID)
	return Request{
		Family: f.name,
		Known:  ok,
		Body:   f.build(prompt),
	}
}

// Families lists the recognized family names in dispatch order.
func Families() []string {
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.name)
	}
	return names
}

func lookup(modelID string) (family, bool) {
	for _, f := range families {
		if f.matches(modelID) {
			return f, true
		}
	}
	return fallback, false
}
