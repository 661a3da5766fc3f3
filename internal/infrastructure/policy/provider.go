// Package policy provides the configuration-backed approval policies and
// the capability table used for action authorization.
package policy

import (
	"fmt"
	"strings"

	"github.com/finstack/docflow/internal/config"
	"github.com/finstack/docflow/internal/domain/approval"
	"github.com/finstack/docflow/internal/domain/document"
)

// Provider resolves approval policies from configuration. Policies are
// loaded once at startup and read-only afterwards.
type Provider struct {
	defaultPolicy approval.Policy
	policies      map[document.Category]approval.Policy
}

// NewProvider builds a provider from the approval configuration.
// Categories without an explicit policy use the default.
func NewProvider(cfg config.ApprovalConfig) (*Provider, error) {
	defaultPolicy, err := toPolicy("", cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("default approval policy: %w", err)
	}

	policies := make(map[document.Category]approval.Policy, len(cfg.Policies))
	for name, pc := range cfg.Policies {
		category := document.Category(strings.ToUpper(name))
		if !category.IsValid() {
			return nil, fmt.Errorf("approval policy for unknown category %q", name)
		}
		policy, err := toPolicy(category, pc)
		if err != nil {
			return nil, fmt.Errorf("approval policy for %s: %w", category, err)
		}
		policies[category] = policy
	}

	return &Provider{
		defaultPolicy: defaultPolicy,
		policies:      policies,
	}, nil
}

// PolicyFor returns the approval policy configured for the category
func (p *Provider) PolicyFor(category document.Category) (approval.Policy, error) {
	if !category.IsValid() {
		return approval.Policy{}, fmt.Errorf("%w: unknown category %q", document.ErrValidation, category)
	}
	if policy, ok := p.policies[category]; ok {
		return policy, nil
	}
	policy := p.defaultPolicy
	policy.Category = category
	return policy, nil
}

func toPolicy(category document.Category, pc config.PolicyConfig) (approval.Policy, error) {
	levels := make([]approval.Level, 0, len(pc.Levels))
	for _, name := range pc.Levels {
		level := approval.Level(strings.ToUpper(name))
		switch level {
		case approval.LevelManager, approval.LevelDirector, approval.LevelCEO:
			levels = append(levels, level)
		default:
			return approval.Policy{}, fmt.Errorf("unknown approval level %q", name)
		}
	}
	return approval.Policy{
		Category:            category,
		Levels:              levels,
		ThresholdCents:      pc.ThresholdCents,
		AllowPartialPayment: pc.AllowPartialPayment,
	}, nil
}
