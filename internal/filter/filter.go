// Package filter selects which listed instances a run correlates.
package filter

import (
	"github.com/yairfalse/tether/pkg/resource"
)

// Filter controls which instances are correlated.
type Filter struct {
	includeStates map[string]bool
	excludeIDs    map[string]bool
}

// New creates a Filter. An empty states list admits every state.
func New(states, excludeIDs []string) *Filter {
	return &Filter{
		includeStates: toSet(states),
		excludeIDs:    toSet(excludeIDs),
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// ShouldInclude returns true if the instance passes the filter.
func (f *Filter) ShouldInclude(inst resource.Instance) bool {
	if f.excludeIDs[inst.ID] {
		return false
	}
	if len(f.includeStates) > 0 && !f.includeStates[inst.State] {
		return false
	}
	return true
}

// Instances returns the instances that pass the filter, in their original order.
func (f *Filter) Instances(instances []resource.Instance) []resource.Instance {
	if f == nil || f.IsEmpty() {
		return instances
	}

	filtered := make([]resource.Instance, 0, len(instances))
	for _, inst := range instances {
		if f.ShouldInclude(inst) {
			filtered = append(filtered, inst)
		}
	}
	return filtered
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return len(f.includeStates) == 0 && len(f.excludeIDs) == 0
}
