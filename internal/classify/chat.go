package classify

import (
	"context"

	"budgetcards/internal/ai"
)

// ChatProvider classifies through an OpenAI-compatible chat endpoint.
type ChatProvider struct {
	client *ai.ChatClient
}

func NewChatProvider(client *ai.ChatClient) *ChatProvider {
	return &ChatProvider{client: client}
}

func (p *ChatProvider) Name() string { return "chat:" + p.client.Model() }

func (p *ChatProvider) Classify(ctx context.Context, text string) (string, error) {
	return p.client.CompleteMessages(ctx, ai.System(systemPrompt), ai.User(Prompt(text)))
}
