package port

import "context"

// AIProvider abstracts the LLM backend used for chat completions.
// Implementations can target Ollama, OpenAI, or any compatible API.
type AIProvider interface {
	// ModelName returns the identifier of the model being used.
	ModelName() string

	// Chat sends a system and user prompt and returns the complete response.
	// When jsonMode is set the model is asked to answer with a single JSON object.
	Chat(ctx context.Context, systemPrompt, userPrompt string, jsonMode bool) (string, error)
}
