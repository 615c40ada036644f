package ratelimit

import (
	"fmt"
	"sort"

	"github.com/turtacn/linkguard/internal/domain/models"
	"github.com/turtacn/linkguard/pkg/constants"
	"github.com/turtacn/linkguard/pkg/errors"
)

// PolicySet is the immutable set of named policies built at startup.
type PolicySet struct {
	policies map[string]models.RateLimitPolicy
}

// NewPolicySet validates policies and indexes them by name. Duplicate names or key
// prefixes are rejected so no two policies ever share counters.
func NewPolicySet(policies ...models.RateLimitPolicy) (*PolicySet, error) {
	byName := make(map[string]models.RateLimitPolicy, len(policies))
	prefixes := make(map[string]string, len(policies))
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byName[p.Name]; dup {
			return nil, errors.ErrInvalidPolicy(p.Name, "duplicate policy name")
		}
		if other, dup := prefixes[p.KeyPrefix]; dup {
			return nil, errors.ErrInvalidPolicy(p.Name, fmt.Sprintf("key prefix %q already used by policy %q", p.KeyPrefix, other))
		}
		byName[p.Name] = p
		prefixes[p.KeyPrefix] = p.Name
	}
	return &PolicySet{policies: byName}, nil
}

// NewPolicySetFromMap builds a set from configuration output.
func NewPolicySetFromMap(m map[string]models.RateLimitPolicy) (*PolicySet, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]models.RateLimitPolicy, 0, len(names))
	for _, name := range names {
		list = append(list, m[name])
	}
	return NewPolicySet(list...)
}

// DefaultPolicies returns the auth and url_create policies with their default limits.
func DefaultPolicies() []models.RateLimitPolicy {
	return []models.RateLimitPolicy{
		{
			Name:        string(constants.PolicyAuth),
			KeyPrefix:   string(constants.PolicyAuth),
			Window:      constants.DefaultAuthWindow,
			MaxRequests: constants.DefaultAuthMaxRequests,
		},
		{
			Name:        string(constants.PolicyURLCreate),
			KeyPrefix:   string(constants.PolicyURLCreate),
			Window:      constants.DefaultURLCreateWindow,
			MaxRequests: constants.DefaultURLCreateMaxRequests,
		},
	}
}

// Get returns the named policy.
func (s *PolicySet) Get(name string) (models.RateLimitPolicy, bool) {
	p, ok := s.policies[name]
	return p, ok
}

// Require returns the named policy or an invalid_policy error.
func (s *PolicySet) Require(name string) (models.RateLimitPolicy, error) {
	p, ok := s.policies[name]
	if !ok {
		return models.RateLimitPolicy{}, errors.ErrInvalidPolicy(name, "policy is not configured")
	}
	return p, nil
}

// Names returns the configured policy names in sorted order.
func (s *PolicySet) Names() []string {
	names := make([]string, 0, len(s.policies))
	for name := range s.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
