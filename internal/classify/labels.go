package classify

import (
	"fmt"
	"strings"
	"unicode"

	"budgetcards/internal/core"
)

// aliases lists the replies accepted for each icon label besides the label
// itself. The Chinese names are the labels stored by earlier versions of the
// app.
var aliases = map[string][]string{
	"clothing":      {"clothes", "apparel", "服装"},
	"dining":        {"food", "restaurant", "餐饮"},
	"housing":       {"rent", "home", "住房"},
	"transport":     {"transportation", "交通"},
	"daily-goods":   {"daily goods", "dailygoods", "groceries", "日用"},
	"medical":       {"health", "healthcare", "医疗"},
	"beauty":        {"cosmetics", "美容"},
	"haircare":      {"haircut", "hair", "美发"},
	"pets":          {"pet", "宠物"},
	"gifts":         {"gift", "礼物"},
	"electronics":   {"electronic", "digital", "数码"},
	"learning":      {"education", "学习"},
	"insurance":     {"保险"},
	"telecom":       {"phone", "telecommunications", "通讯"},
	"sports":        {"sport", "fitness", "运动"},
	"travel":        {"trip", "旅游"},
	"entertainment": {"fun", "娱乐"},
	"other":         {"others", "misc", "其他"},
}

var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for label, names := range aliases {
		for _, n := range names {
			idx[n] = label
		}
	}
	return idx
}()

// Normalize trims, lower-cases and strips punctuation from a provider reply.
// Inner spaces collapse to one; hyphens are kept.
func Normalize(reply string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(strings.TrimSpace(reply)) {
		switch {
		case r == '-':
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r) || r == '_':
			space = b.Len() > 0
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Match maps a raw reply onto an icon label. Unknown replies yield
// core.LabelOther.
func Match(reply string) string {
	n := Normalize(reply)
	if core.IsIconLabel(n) {
		return n
	}
	if l, ok := aliasIndex[n]; ok {
		return l
	}
	if l, ok := aliasIndex[strings.ReplaceAll(n, "-", " ")]; ok {
		return l
	}
	// "category: dining" and similar wrappers
	if i := strings.LastIndex(n, " "); i >= 0 {
		return Match(n[i+1:])
	}
	return core.LabelOther
}

const systemPrompt = "You are a spending classification assistant."

// Prompt asks for exactly one label for text.
func Prompt(text string) string {
	return fmt.Sprintf(
		"Classify the spending item %q into exactly one of these categories: %s. Reply with the category name only, no explanation.",
		text, strings.Join(core.IconLabels, ", "))
}
