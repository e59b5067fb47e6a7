// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package trigger

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrSealed is returned when a rule is registered after Seal.
	ErrSealed = errors.New("registry is sealed")
	// ErrInvalidOutput is returned for an Output not built with Text or Image.
	ErrInvalidOutput = errors.New("invalid output")
	// ErrInvalidThreshold is returned for a fuzzy threshold outside (0, 1].
	ErrInvalidThreshold = errors.New("similarity threshold must be in (0, 1]")
)

// DefaultSimilarityThreshold is used for config rules that ask for fuzzy
// matching without naming a threshold.
const DefaultSimilarityThreshold = 0.5

// MatchMode selects how a Rule compares its trigger with the input.
type MatchMode int

const (
	// MatchExact requires byte-for-byte equality.
	MatchExact MatchMode = iota
	// MatchFuzzy accepts inputs scored at or above the rule threshold.
	MatchFuzzy
)

func (m MatchMode) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return fmt.Sprintf("MatchMode(%d)", int(m))
	}
}

// Rule pairs a trigger text with the reply it produces.
type Rule struct {
	Trigger   string
	Output    Output
	Mode      MatchMode
	Threshold float64
}

// DefaultRule is a reply sent when no Rule matched.
type DefaultRule struct {
	Output Output
}

// Registry stores rules and default replies. Rules are only appended, and
// only until Seal is called.
type Registry struct {
	rules      []Rule
	defaults   []DefaultRule
	similarity Similarity
	sealed     atomic.Bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithSimilarity replaces the similarity oracle used by fuzzy rules.
func WithSimilarity(fn Similarity) Option {
	return func(r *Registry) {
		r.similarity = fn
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{similarity: Levenshtein}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add appends a rule. Empty and duplicate triggers are allowed.
func (r *Registry) Add(rule Rule) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if !rule.Output.Valid() {
		return fmt.Errorf("rule %q: %w", rule.Trigger, ErrInvalidOutput)
	}
	switch rule.Mode {
	case MatchExact:
		rule.Threshold = 0
	case MatchFuzzy:
		if !(rule.Threshold > 0 && rule.Threshold <= 1) {
			return fmt.Errorf("rule %q: %w (got %v)", rule.Trigger, ErrInvalidThreshold, rule.Threshold)
		}
	default:
		return fmt.Errorf("rule %q: unknown match mode %v", rule.Trigger, rule.Mode)
	}
	r.rules = append(r.rules, rule)
	return nil
}

// AddDefault appends a fallback reply.
func (r *Registry) AddDefault(out Output) error {
	if r.sealed.Load() {
		return ErrSealed
	}
	if !out.Valid() {
		return fmt.Errorf("default reply: %w", ErrInvalidOutput)
	}
	r.defaults = append(r.defaults, DefaultRule{Output: out})
	return nil
}

// Seal ends the registration phase.
func (r *Registry) Seal() {
	r.sealed.Store(true)
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed.Load()
}

// Len returns the number of registered rules, not counting defaults.
func (r *Registry) Len() int {
	return len(r.rules)
}

// Match returns every rule accepting text, in registration order. The result
// is a fresh slice; callers may keep or modify it.
func (r *Registry) Match(text string) []Rule {
	var matches []Rule
	for _, rule := range r.rules {
		if r.matches(rule, text) {
			matches = append(matches, rule)
		}
	}
	return matches
}

func (r *Registry) matches(rule Rule, text string) bool {
	switch rule.Mode {
	case MatchExact:
		return text == rule.Trigger
	case MatchFuzzy:
		return r.similarity(text, rule.Trigger) >= rule.Threshold
	default:
		return false
	}
}

// Defaults returns all fallback replies regardless of input.
func (r *Registry) Defaults() []DefaultRule {
	out := make([]DefaultRule, len(r.defaults))
	copy(out, r.defaults)
	return out
}
