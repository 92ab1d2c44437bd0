package core

// LabelOther is the catch-all icon label.
const LabelOther = "other"

// IconLabels is the closed set a classifier may assign to an item.
var IconLabels = []string{
	"clothing",
	"dining",
	"housing",
	"transport",
	"daily-goods",
	"medical",
	"beauty",
	"haircare",
	"pets",
	"gifts",
	"electronics",
	"learning",
	"insurance",
	"telecom",
	"sports",
	"travel",
	"entertainment",
	LabelOther,
}

// IsIconLabel reports whether s is one of IconLabels.
func IsIconLabel(s string) bool {
	for _, l := range IconLabels {
		if l == s {
			return true
		}
	}
	return false
}
