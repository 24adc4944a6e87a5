package port

import "context"

// LLM is the inference endpoint. Implementations hold the transport; all
// prompt traffic still flows through the gateway, never directly from a
// stage.
type LLM interface {
	// Open starts a conversational session bound to the given scope id.
	Open(ctx context.Context, id, systemPrompt string) (Session, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Session is a bounded conversational context. Responses are untrusted
// free-form text and must be validated before use.
type Session interface {
	// Send submits a prompt within the session and returns the raw response.
	Send(ctx context.Context, prompt string) (string, error)

	// ID returns the scope identifier the session was opened with.
	ID() string

	// Close releases the conversational context.
	Close() error
}
