package dialogue

import (
	"avachat/app/config"
	"strings"

	"github.com/elliotchance/pie/v2"
)

// Variables is the closed set of UI/state variables a reply can activate.
var Variables = []string{
	"full_name",
	"bedroom_size",
	"calendar",
	"user_action",
	"faq",
	"yes_no",
	"incentive",
	"price_range",
	"work_place",
	"occupancy",
	"pet",
	"features",
	"tour",
	"incentive_25",
	"incentive_50",
}

// Generic interrogative openers, tested only after every specific rule missed.
var interrogativePrefixes = []string{
	"is ", "are ", "do ", "does ", "did ",
	"can ", "could ", "would ", "will ", "should ", "have ",
}

// TriggerResolver maps a reply to the single variable it activates. Rules run
// in their configured priority order, first case-insensitive substring match
// wins.
type TriggerResolver struct {
	rules []config.TriggerRule
}

func NewTriggerResolver(cfg config.Triggers) *TriggerResolver {
	rules := pie.Filter(cfg.Rules, func(rule config.TriggerRule) bool {
		return pie.Contains(Variables, rule.Variable) && len(rule.Keywords) > 0
	})

	return &TriggerResolver{rules: rules}
}

func (r *TriggerResolver) Resolve(reply string) (string, bool) {
	lowered := strings.ToLower(reply)

	for _, rule := range r.rules {
		for _, keyword := range rule.Keywords {
			if strings.Contains(lowered, strings.ToLower(keyword)) {
				return rule.Variable, true
			}
		}
	}

	if strings.Contains(lowered, "?") {
		trimmed := strings.TrimSpace(lowered)
		for _, prefix := range interrogativePrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				return "yes_no", true
			}
		}
	}

	return "", false
}

// VariableMap reports the full closed set with at most the active variable
// set to true.
func (r *TriggerResolver) VariableMap(active string) map[string]bool {
	result := make(map[string]bool, len(Variables))
	for _, name := range Variables {
		result[name] = name == active
	}

	return result
}
