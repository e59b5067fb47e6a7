// Copyright 2024-2026 Aiku AI

package trigger

// RuleBuilder declares the reply of a rule. It is returned by
// Registry.Receive and Registry.Similar.
type RuleBuilder struct {
	reg       *Registry
	trigger   string
	mode      MatchMode
	threshold float64
}

// Receive starts an exact-match rule for trigger.
func (r *Registry) Receive(trigger string) *RuleBuilder {
	return &RuleBuilder{reg: r, trigger: trigger, mode: MatchExact}
}

// Similar starts a fuzzy rule for trigger accepting inputs whose similarity
// is at least threshold.
func (r *Registry) Similar(trigger string, threshold float64) *RuleBuilder {
	return &RuleBuilder{reg: r, trigger: trigger, mode: MatchFuzzy, threshold: threshold}
}

// Reply registers a text reply. It panics if the rule is invalid or the
// registry is sealed; rules are declared at startup, so either is a bug.
func (b *RuleBuilder) Reply(text string) {
	b.add(Text(text))
}

// ReplyImage registers an image reply. It panics like Reply.
func (b *RuleBuilder) ReplyImage(url string) {
	b.add(Image(url))
}

func (b *RuleBuilder) add(out Output) {
	err := b.reg.Add(Rule{
		Trigger:   b.trigger,
		Output:    out,
		Mode:      b.mode,
		Threshold: b.threshold,
	})
	if err != nil {
		panic("trigger: " + err.Error())
	}
}

// DefaultBuilder declares a fallback reply.
type DefaultBuilder struct {
	reg *Registry
}

// Default starts a fallback reply declaration.
func (r *Registry) Default() *DefaultBuilder {
	return &DefaultBuilder{reg: r}
}

// Reply registers a fallback text reply. Fallbacks are text only.
func (b *DefaultBuilder) Reply(text string) {
	if err := b.reg.AddDefault(Text(text)); err != nil {
		panic("trigger: " + err.Error())
	}
}
