// Package assist implements the editor assistant against an
// OpenAI-compatible /v1/chat/completions endpoint. This covers vLLM,
// Ollama, and OpenAI itself.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pkt.systems/codepad/internal/appconfig"
	"pkt.systems/codepad/schema"
	"pkt.systems/pslog"
)

const systemPrompt = "You are a coding assistant embedded in an HTML/CSS/JavaScript " +
	"scratchpad editor. The user's current buffers are included below. " +
	"Answer concisely and return code in fenced blocks."

// Client calls a chat-completion endpoint with the session buffers as context.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	log      pslog.Logger
}

// New constructs a client from config. Returns nil (assistant disabled)
// when no endpoint is configured.
func New(cfg appconfig.AssistConfig, logger pslog.Logger) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	apiKey := ""
	if cfg.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.APIKeyEnv)
	}
	if logger != nil {
		logger = logger.With("assistant_endpoint", endpoint)
	}
	return &Client{
		endpoint: endpoint,
		model:    cfg.Model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		log:      logger,
	}
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
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends the prompt plus buffer context and returns the reply text.
func (c *Client) Complete(ctx context.Context, prompt string, buffers schema.BufferSnapshot) (string, error) {
	if c == nil {
		return "", schema.ErrAssistantUnavailable
	}
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserMessage(prompt, buffers)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.Warn("assistant request failed", "err", err)
		}
		return "", fmt.Errorf("HTTP POST %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if c.log != nil {
			c.log.Warn("assistant request rejected", "status", resp.StatusCode)
		}
		return "", fmt.Errorf("HTTP %d from %s: %s", resp.StatusCode, url, string(respBody))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return result.Choices[0].Message.Content, nil
}

func buildUserMessage(prompt string, buffers schema.BufferSnapshot) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nCurrent buffers:\n")
	writeBuffer(&sb, "html", buffers.HTML)
	writeBuffer(&sb, "css", buffers.CSS)
	writeBuffer(&sb, "js", buffers.JS)
	return sb.String()
}

func writeBuffer(sb *strings.Builder, lang, content string) {
	sb.WriteString("```")
	sb.WriteString(lang)
	sb.WriteString("\n")
	sb.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n")
}
