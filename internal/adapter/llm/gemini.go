package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"prdgen/internal/port"
)

// GeminiClient implements port.LLM on the Google GenAI SDK. Each session
// maps to one chat, so conversational memory follows the stage's session
// policy for free.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) ModelName() string { return c.model }

func (c *GeminiClient) Open(ctx context.Context, id, systemPrompt string) (port.Session, error) {
	cfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	chat, err := c.client.Chats.Create(ctx, c.model, cfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open session %s: %w", id, err)
	}

	return &geminiSession{id: id, chat: chat}, nil
}

type geminiSession struct {
	id   string
	chat *genai.Chat
}

func (s *geminiSession) ID() string { return s.id }

func (s *geminiSession) Send(ctx context.Context, prompt string) (string, error) {
	res, err := s.chat.SendMessage(ctx, genai.Part{Text: prompt})
	if err != nil {
		return "", err
	}

	if len(res.Candidates) > 0 {
		switch res.Candidates[0].FinishReason {
		case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
			return "", fmt.Errorf("candidate blocked (%s): %w", res.Candidates[0].FinishReason, port.ErrRefusal)
		}
	}

	text := res.Text()
	if text == "" {
		return "", fmt.Errorf("empty response: %w", port.ErrRefusal)
	}
	return text, nil
}

func (s *geminiSession) Close() error {
	s.chat = nil
	return nil
}
