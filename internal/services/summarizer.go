package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"budgetcards/internal/ai"
	"budgetcards/internal/core"
)

// NoAnalysis is returned when the model gives an empty answer.
const NoAnalysis = "no analysis available"

const summarySystemPrompt = "You are a lifestyle analyst who spots habits in spending data."

// Completer is the chat call the summarizer needs.
type Completer interface {
	CompleteMessages(ctx context.Context, msgs ...ai.Message) (string, error)
}

// Summarizer asks a chat model for a natural-language review of a month.
type Summarizer struct {
	chat Completer
}

func NewSummarizer(chat Completer) *Summarizer {
	return &Summarizer{chat: chat}
}

type summaryItem struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Amount   string `json:"amount"`
	Status   string `json:"status"`
	Icon     string `json:"iconCategory,omitempty"`
}

// SummaryPrompt renders the month as JSON inside the analysis instructions.
func SummaryPrompt(m core.Month) (string, error) {
	items := make([]summaryItem, 0)
	for _, c := range m.Cards {
		for _, it := range core.SortByPosition(c.Items) {
			items = append(items, summaryItem{
				Category: c.Title,
				Text:     it.Text,
				Amount:   core.NonNegative(it.Amount).StringFixed(2),
				Status:   string(it.Status),
				Icon:     it.IconCategory,
			})
		}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a bookkeeping analyst. Below is one month (%04d-%02d) of a user's spending.\n", m.Year, m.Month)
	b.WriteString("Analyse the spending habits and answer in this format:\n\n")
	b.WriteString("1. Monthly summary\n- One short, playful sentence about this month's spending behaviour.\n\n")
	b.WriteString("2. Per category (short and playful)\n")
	for i, c := range core.FixedCategories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\nData:\n")
	b.Write(data)
	b.WriteString("\n")
	return b.String(), nil
}

// Summarize returns the model's review of m, or NoAnalysis when the reply is
// empty.
func (s *Summarizer) Summarize(ctx context.Context, m core.Month) (string, error) {
	if s == nil || s.chat == nil {
		return "", ai.ErrMissingAPIKey
	}
	prompt, err := SummaryPrompt(m)
	if err != nil {
		return "", fmt.Errorf("build summary prompt: %w", err)
	}
	reply, err := s.chat.CompleteMessages(ctx, ai.System(summarySystemPrompt), ai.User(prompt))
	if err != nil {
		return "", fmt.Errorf("summarize %04d-%02d: %w", m.Year, m.Month, err)
	}
	if strings.TrimSpace(reply) == "" {
		return NoAnalysis, nil
	}
	return reply, nil
}
