// Copyright 2024-2026 Aiku AI

package trigger

import (
	"errors"
	"fmt"
)

// RuleConfig is a rule as written in the YAML config.
type RuleConfig struct {
	Trigger string `yaml:"trigger"`
	// Similar switches the rule to fuzzy matching. Threshold defaults to
	// DefaultSimilarityThreshold when left at zero.
	Similar   bool    `yaml:"similar"`
	Threshold float64 `yaml:"threshold"`
	Reply     string  `yaml:"reply"`
	Image     string  `yaml:"image"`
}

// DefaultConfig is a fallback reply as written in the YAML config.
type DefaultConfig struct {
	Reply string `yaml:"reply"`
}

// Output returns the reply described by rc. Exactly one of reply and image
// must be set.
func (rc RuleConfig) Output() (Output, error) {
	switch {
	case rc.Reply != "" && rc.Image != "":
		return Output{}, fmt.Errorf("rule %q sets both reply and image", rc.Trigger)
	case rc.Image != "":
		return Image(rc.Image), nil
	case rc.Reply != "":
		return Text(rc.Reply), nil
	default:
		return Output{}, fmt.Errorf("rule %q has no reply or image", rc.Trigger)
	}
}

// Rule converts rc to a Rule.
func (rc RuleConfig) Rule() (Rule, error) {
	out, err := rc.Output()
	if err != nil {
		return Rule{}, err
	}
	rule := Rule{Trigger: rc.Trigger, Output: out, Mode: MatchExact}
	if rc.Similar || rc.Threshold != 0 {
		rule.Mode = MatchFuzzy
		rule.Threshold = rc.Threshold
		if rule.Threshold == 0 {
			rule.Threshold = DefaultSimilarityThreshold
		}
	}
	return rule, nil
}

// Load registers config-declared rules and defaults on reg. All entries are
// checked and every problem is reported; nothing is registered for an entry
// that fails.
func Load(reg *Registry, rules []RuleConfig, defaults []DefaultConfig) error {
	var errs []error
	for i, rc := range rules {
		rule, err := rc.Rule()
		if err == nil {
			err = reg.Add(rule)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	for i, dc := range defaults {
		if dc.Reply == "" {
			errs = append(errs, fmt.Errorf("defaults[%d]: empty reply", i))
			continue
		}
		if err := reg.AddDefault(Text(dc.Reply)); err != nil {
			errs = append(errs, fmt.Errorf("defaults[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
