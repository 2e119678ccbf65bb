package casefile

import (
	"strconv"
	"strings"
)

// PlaceholderText is substituted when the input carries no usable facts.
const PlaceholderText = "No case facts provided"

// Descriptor is the canonical, normalized form of a case or market question.
// Text and Category are always non-absent after Normalize (empty category is
// replaced by the default, empty text by PlaceholderText).
type Descriptor struct {
	Text     string
	Category string
	EntityID string
	Mode     string
	Priors   map[string]float64
}

// Candidate key names, in fallback order, for each descriptor field.
// Upstream payloads are loosely typed and use several spellings.
var (
	textKeys     = []string{"facts", "case_facts", "description", "summary", "text", "question"}
	categoryKeys = []string{"case_type", "category"}
	entityKeys   = []string{"judge_id", "entity_id", "judge"}
	priorKeys    = []string{"precedent_strength", "case_age_months"}
)

// Normalize converts a loose input map into a Descriptor. It is total:
// unknown fields are ignored, missing fields fall back through the candidate
// keys to defaults, and no input (including nil) makes it fail.
func Normalize(raw map[string]any, defaultCategory string) Descriptor {
	if defaultCategory == "" {
		defaultCategory = "civil"
	}

	d := Descriptor{
		Text:     PlaceholderText,
		Category: defaultCategory,
	}
	if raw == nil {
		return d
	}

	if text, ok := firstString(raw, textKeys); ok {
		d.Text = text
	}
	if cat, ok := firstString(raw, categoryKeys); ok {
		d.Category = strings.ToLower(cat)
	}
	if ent, ok := firstString(raw, entityKeys); ok {
		d.EntityID = ent
	}
	if mode, ok := firstString(raw, []string{"mode"}); ok {
		d.Mode = strings.ToLower(mode)
	}

	for _, k := range priorKeys {
		if f, ok := asFloat(raw[k]); ok {
			if d.Priors == nil {
				d.Priors = make(map[string]float64)
			}
			d.Priors[k] = f
		}
	}
	return d
}

func firstString(raw map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		s, ok := raw[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" {
			return s, true
		}
	}
	return "", false
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
