package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ChatModel sends classification prompts to an OpenAI-compatible
// /chat/completions endpoint and returns the first choice's content.
type ChatModel struct {
	Client       *Client
	URL          string
	Model        string
	SystemPrompt string
	Temperature  float64
}

// NewChatModel creates a chat model; baseURL may point at the API root or the full completions path
func NewChatModel(client *Client, baseURL, model, systemPrompt string) *ChatModel {
	return &ChatModel{
		Client:       client,
		URL:          CompletionsURL(baseURL),
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  0.1,
	}
}

// CompletionsURL appends /chat/completions unless already present
func CompletionsURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// Message is one chat turn sent to the model
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Complete implements the classifier model contract
func (m *ChatModel) Complete(ctx context.Context, prompt string) (string, error) {
	messages := []Message{}
	if m.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: m.SystemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})
	return m.send(ctx, messages, m.Temperature, true)
}

// Chat sends a free-form conversation and returns the reply text. The model's
// SystemPrompt is not added; callers supply their own system turn.
func (m *ChatModel) Chat(ctx context.Context, messages []Message, temperature float64) (string, error) {
	return m.send(ctx, messages, temperature, false)
}

func (m *ChatModel) send(ctx context.Context, messages []Message, temperature float64, jsonMode bool) (string, error) {
	payload := map[string]interface{}{
		"model":       m.Model,
		"messages":    messages,
		"temperature": temperature,
	}
	if jsonMode {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	respBody, err := m.Client.Call(ctx, m.URL, payload)
	if err != nil {
		return "", fmt.Errorf("llm call failed: %w", err)
	}

	// Parse standard OpenAI-style response
	var llmResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &llmResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from llm")
	}
	return llmResp.Choices[0].Message.Content, nil
}
