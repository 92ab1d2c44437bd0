// Package ai talks to an OpenAI-compatible chat-completion endpoint.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultEndpoint    = "https://api.moonshot.cn/v1/chat/completions"
	DefaultModel       = "moonshot-v1-8k"
	DefaultTemperature = 0.2
)

var ErrMissingAPIKey = errors.New("missing AI API key")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the upstream request body.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// StatusError is a non-2xx upstream answer.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion: status %d: %s", e.Status, strings.TrimSpace(string(e.Body)))
}

type ChatClient struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	http        *http.Client
}

type Option func(*ChatClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *ChatClient) { c.http = hc }
}

func WithTemperature(t float64) Option {
	return func(c *ChatClient) { c.temperature = t }
}

// NewChatClient builds a client. Empty endpoint and model fall back to the
// defaults. A missing key is accepted here and reported on each call.
func NewChatClient(endpoint, apiKey, model string, opts ...Option) *ChatClient {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultModel
	}
	c := &ChatClient{
		endpoint:    endpoint,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: DefaultTemperature,
		http:        &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *ChatClient) Model() string { return c.model }

// NewRequest wraps msgs with the client's model and temperature.
func (c *ChatClient) NewRequest(msgs ...Message) ChatRequest {
	return ChatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	}
}

func User(content string) Message   { return Message{Role: "user", Content: content} }
func System(content string) Message { return Message{Role: "system", Content: content} }

// Do sends req and returns the upstream status and raw body. err is set only
// when no response was obtained.
func (c *ChatClient) Do(ctx context.Context, req ChatRequest) (int, []byte, error) {
	if c.apiKey == "" {
		return 0, nil, ErrMissingAPIKey
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return 0, nil, fmt.Errorf("encode chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("chat completion: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read chat response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// CompleteMessages returns the first choice's content, trimmed. Non-2xx
// answers are returned as *StatusError.
func (c *ChatClient) CompleteMessages(ctx context.Context, msgs ...Message) (string, error) {
	status, body, err := c.Do(ctx, c.NewRequest(msgs...))
	if err != nil {
		return "", err
	}
	if status < 200 || status > 299 {
		return "", &StatusError{Status: status, Body: body}
	}
	var cr ChatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
