package router

import "strings"

// Level is the sum-typed model-capability tier. Values are ordered
// fast < low < medium < high < ultra.
type Level string

const (
	LevelFast   Level = "fast"
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
	LevelUltra  Level = "ultra"
)

// levelOrder is the canonical ascending priority order.
var levelOrder = []Level{LevelFast, LevelLow, LevelMedium, LevelHigh, LevelUltra}

// priority returns l's position in levelOrder (0 = lowest).
func priority(l Level) int {
	for i, v := range levelOrder {
		if v == l {
			return i
		}
	}
	return -1
}

// aliases maps alternate spellings onto canonical levels, so config and
// intent-pre-pass replies don't have to use the exact enum spelling.
var aliases = map[string]Level{
	"fast":     LevelFast,
	"cheap":    LevelFast,
	"economy":  LevelFast,
	"low":      LevelLow,
	"basic":    LevelLow,
	"medium":   LevelMedium,
	"standard": LevelMedium,
	"default":  LevelMedium,
	"high":     LevelHigh,
	"advanced": LevelHigh,
	"ultra":    LevelUltra,
	"max":      LevelUltra,
	"best":     LevelUltra,
	"flagship": LevelUltra,
}

// ParseLevel resolves s (case-insensitive, trimmed) to a canonical Level.
func ParseLevel(s string) (Level, bool) {
	l, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	return l, ok
}

// bandForScore maps a clamped [0,100] complexity score to a level using
// the non-overlapping bands fast=[0,20) low=[20,40) medium=[40,60)
// high=[60,80) ultra=[80,100].
func bandForScore(score int) Level {
	switch {
	case score < 20:
		return LevelFast
	case score < 40:
		return LevelLow
	case score < 60:
		return LevelMedium
	case score < 80:
		return LevelHigh
	default:
		return LevelUltra
	}
}
