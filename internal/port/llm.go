package port

import "context"

// TextGenerator represents a language model for answer generation.
type TextGenerator interface {
	// Generate produces text from a system prompt and a user prompt.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}
