package classify

import (
	"context"
	"fmt"
	"strings"

	"budgetcards/internal/ai"
)

// Provider kinds accepted by NewProvider.
const (
	KindChat      = "chat"
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindNone      = "none"
)

// Settings selects and configures a provider.
type Settings struct {
	Kind         string
	Chat         *ai.ChatClient
	AnthropicKey string
	GeminiKey    string
	Model        string
}

// NewProvider builds the provider named by s.Kind. KindNone, or a provider
// whose key is missing, returns a nil Provider so the gateway falls back to
// core.LabelOther.
func NewProvider(ctx context.Context, s Settings) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case "", KindChat:
		if s.Chat == nil {
			return nil, nil
		}
		return NewChatProvider(s.Chat), nil
	case KindAnthropic:
		if s.AnthropicKey == "" {
			return nil, nil
		}
		return NewAnthropicProvider(s.AnthropicKey, s.Model), nil
	case KindGemini:
		if s.GeminiKey == "" {
			return nil, nil
		}
		p, err := NewGeminiProvider(ctx, s.GeminiKey, s.Model)
		if err != nil {
			return nil, err
		}
		return p, nil
	case KindNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", s.Kind)
	}
}
