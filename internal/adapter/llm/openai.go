package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"prdgen/internal/port"
)

// OpenAIClient implements port.LLM against any OpenAI-compatible chat
// completions endpoint. Session history is kept client-side and replayed on
// every call.
type OpenAIClient struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return NewOpenAICompatibleClient(apiKey, model, "https://api.openai.com/v1")
}

func NewDeepSeekClient(apiKey, model string) *OpenAIClient {
	return NewOpenAICompatibleClient(apiKey, model, "https://api.deepseek.com/v1")
}

func NewOllamaClient(model, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return NewOpenAICompatibleClient("ollama", model, baseURL)
}

func NewOpenAICompatibleClient(apiKey, model, baseURL string) *OpenAIClient {
	// No client-level timeout: the gateway bounds every call through the
	// request context.
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

func (c *OpenAIClient) ModelName() string { return c.model }

func (c *OpenAIClient) Open(ctx context.Context, id, systemPrompt string) (port.Session, error) {
	sess := &openAISession{id: id, client: c}
	if systemPrompt != "" {
		sess.history = append(sess.history, chatMessage{Role: "system", Content: systemPrompt})
	}
	return sess, nil
}

type openAISession struct {
	id      string
	client  *OpenAIClient
	mu      sync.Mutex
	history []chatMessage
}

func (s *openAISession) ID() string { return s.id }

func (s *openAISession) Send(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(append([]chatMessage(nil), s.history...), chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: s.client.model, Messages: messages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.client.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.client.apiKey)

	resp, err := s.client.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("malformed API response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices returned: %w", port.ErrRefusal)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("content filtered: %w", port.ErrRefusal)
	}

	s.history = messages
	s.history = append(s.history, choice.Message)
	return choice.Message.Content, nil
}

func (s *openAISession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	return nil
}
