// Package classify assigns an icon label to free-text spending items.
package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"budgetcards/internal/core"
	applog "budgetcards/internal/log"
)

const DefaultTimeout = 10 * time.Second

// Provider returns the raw reply of a model asked to classify text.
type Provider interface {
	Name() string
	Classify(ctx context.Context, text string) (string, error)
}

// Gateway wraps a Provider so callers always get a known label.
type Gateway struct {
	provider Provider
	timeout  time.Duration
	logger   *applog.Logger
}

// NewGateway returns a gateway over p. A nil provider classifies
// everything as core.LabelOther.
func NewGateway(p Provider, timeout time.Duration, logger *applog.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentClassify)
	}
	return &Gateway{provider: p, timeout: timeout, logger: logger}
}

// Enabled reports whether a provider is configured.
func (g *Gateway) Enabled() bool { return g != nil && g.provider != nil }

// Classify never fails. Provider errors, panics, timeouts, empty and
// unknown replies all resolve to core.LabelOther.
func (g *Gateway) Classify(ctx context.Context, text string) (label string) {
	label = core.LabelOther
	if !g.Enabled() || strings.TrimSpace(text) == "" {
		return label
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			g.logger.ErrorContext(ctx, "Classification provider panicked",
				applog.FieldProvider, g.provider.Name(),
				applog.FieldError, fmt.Sprint(r))
			label = core.LabelOther
		}
	}()

	start := time.Now()
	reply, err := g.provider.Classify(ctx, text)
	if err != nil {
		g.logger.WarnContext(ctx, "Classification failed, using fallback label",
			applog.FieldProvider, g.provider.Name(),
			applog.FieldError, err,
			applog.FieldDuration, time.Since(start).Milliseconds())
		return label
	}

	label = Match(reply)
	g.logger.DebugContext(ctx, "Item classified",
		applog.FieldProvider, g.provider.Name(),
		applog.FieldLabel, label,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return label
}
