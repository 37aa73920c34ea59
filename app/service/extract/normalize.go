package extract

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// The extractor model wraps its output in different shapes from run to run: a
// bare slot object, {"record": {...}}, or some other single-key wrapper around
// the slot object. Everything is normalized here, before it reaches the
// session, into either a plain slot map or a malformed verdict.

var jsonObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// leadMarkers decide whether a map looks like lead data at all.
var leadMarkers = []string{"prospect_name", "desired_bedrooms", "move_in_date"}

var requiredFields = []string{
	"prospect_name", "desired_bedrooms", "move_in_date",
	"reason_for_move", "price_low", "price_high",
	"num_occupants", "pq_completed", "tour_slot",
	"contact_email", "contact_phone",
}

// NormalizeContent extracts a slot map from free-form model output: code
// fences and a leading "json" tag are stripped, then the first JSON object in
// the blob is parsed and unwrapped.
func NormalizeContent(raw string) (map[string]any, bool) {
	cleaned := strings.Trim(strings.TrimSpace(raw), "`")
	cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, "json"))

	blob := jsonObjectRe.FindString(cleaned)
	if blob == "" {
		return nil, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return nil, false
	}

	return unwrap(parsed)
}

// NormalizeToolArgs unwraps write_lead_record arguments, which arrive either
// as the record itself or nested under "record".
func NormalizeToolArgs(arguments string) (map[string]any, bool) {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(arguments), &parsed); err != nil {
		return nil, false
	}

	return unwrap(parsed)
}

func unwrap(parsed map[string]any) (map[string]any, bool) {
	if len(parsed) == 0 {
		return map[string]any{}, true
	}

	if record, ok := parsed["record"].(map[string]any); ok {
		return record, true
	}

	if hasLeadMarker(parsed) {
		return parsed, true
	}

	// Some other wrapper, take the first nested object that carries lead
	// fields.
	for _, value := range parsed {
		if nested, ok := value.(map[string]any); ok && hasLeadMarker(nested) {
			return nested, true
		}
	}

	// No markers anywhere, treat the top-level object as slot data as long as
	// it is flat enough to merge. Unknown keys are tolerated on purpose.
	for _, value := range parsed {
		switch value.(type) {
		case map[string]any, []any, string, float64, bool, nil:
		default:
			return nil, false
		}
	}

	return parsed, true
}

func hasLeadMarker(m map[string]any) bool {
	for _, marker := range leadMarkers {
		if _, ok := m[marker]; ok {
			return true
		}
	}

	return false
}

var (
	nameRe  = regexp.MustCompile(`^[A-Za-z][A-Za-z .'-]{0,39}$`)
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// ValidateSlots drops values that fail the intake validation rules. Invalid
// values are discarded silently, the prior known-good value survives the
// merge. Cross-field rules are checked against known, the merged view of the
// session's current slots and this update.
func ValidateSlots(slots, known map[string]any) map[string]any {
	merged := make(map[string]any, len(known)+len(slots))
	for key, value := range known {
		merged[key] = value
	}
	for key, value := range slots {
		if value != nil {
			merged[key] = value
		}
	}

	result := make(map[string]any, len(slots))

	for key, value := range slots {
		if value == nil {
			result[key] = nil
			continue
		}

		if valid(key, value, merged) {
			result[key] = value
		}
	}

	return result
}

func valid(key string, value any, slots map[string]any) bool {
	switch key {
	case "prospect_name":
		s, ok := value.(string)
		return ok && nameRe.MatchString(strings.TrimSpace(s))

	case "desired_bedrooms":
		n, ok := asNumber(value)
		return ok && n >= 1 && n <= 3

	case "move_in_date":
		s, ok := value.(string)
		if !ok {
			return false
		}
		_, err := time.Parse("2006-01-02", s)
		return err == nil

	case "price_low", "price_high":
		n, ok := asNumber(value)
		if !ok || n < 500 || n > 10000 {
			return false
		}
		low, lowOK := asNumber(slots["price_low"])
		high, highOK := asNumber(slots["price_high"])
		if lowOK && highOK && low > high {
			return false
		}
		return true

	case "num_occupants":
		n, ok := asNumber(value)
		return ok && n >= 1

	case "contact_email":
		s, ok := value.(string)
		return ok && emailRe.MatchString(s)

	case "contact_phone":
		s, ok := value.(string)
		if !ok {
			return false
		}
		stripped := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(s)
		return phoneRe.MatchString(stripped)

	default:
		return true
	}
}

func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// RequiredComplete reports whether every field of the persistence rule is
// present and non-nil.
func RequiredComplete(slots map[string]any) bool {
	for _, field := range requiredFields {
		if value, ok := slots[field]; !ok || value == nil {
			return false
		}
	}

	return true
}
