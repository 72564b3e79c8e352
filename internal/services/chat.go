package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	chatMaxTokens   = 300
	chatTemperature = 0.3

	ChatUnconfiguredMessage = "IA non configurée. Définissez OPENAI_API_KEY dans .env."
)

type ChatStatus string

const (
	ChatReply        ChatStatus = "reply"
	ChatUnconfigured ChatStatus = "unconfigured"
	ChatFailed       ChatStatus = "failed"
)

// ChatResult distingue la réponse du modèle d'un échec d'appel
type ChatResult struct {
	Status ChatStatus
	// Text est la réponse du modèle, le message fixe, ou la raison de l'échec
	Text string
}

type ChatConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// ChatProxy relaie un prompt vers une API compatible OpenAI /chat/completions
type ChatProxy struct {
	cfg    ChatConfig
	client *http.Client
}

func NewChatProxy(cfg ChatConfig) *ChatProxy {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ChatProxy{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Chat ne retourne jamais d'erreur : l'issue est portée par ChatResult.Status
func (p *ChatProxy) Chat(ctx context.Context, prompt string) ChatResult {
	if p.cfg.APIKey == "" {
		return ChatResult{Status: ChatUnconfigured, Text: ChatUnconfiguredMessage}
	}

	text, err := p.complete(ctx, prompt)
	if err != nil {
		return ChatResult{Status: ChatFailed, Text: err.Error()}
	}
	return ChatResult{Status: ChatReply, Text: text}
}

func (p *ChatProxy) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:       p.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   chatMaxTokens,
		Temperature: chatTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("encodage requête: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("création requête: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("appel IA échoué: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("appel IA échoué: statut %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("réponse IA illisible: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("réponse IA vide")
	}
	return out.Choices[0].Message.Content, nil
}
