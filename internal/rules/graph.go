// Package rules executes a template's rule set respecting declared
// dependencies and concurrency limits.
package rules

import (
	"sort"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// depGraph tracks which rules have run so dependents can be released into
// later waves. Dependencies resolve only against rule IDs present in the
// same rule set; cycles and dangling references are tolerated: they simply
// never become ready, and the processor force-schedules the remainder.
type depGraph struct {
	// nodes maps rule ID to the rule.
	nodes map[string]models.ValidationRule
	// edges maps rule ID to the IDs it depends on.
	edges map[string][]string
	// executed tracks rules that have run (passed, failed, or timed out).
	executed map[string]bool
}

// newDepGraph builds the graph from a rule set.
func newDepGraph(ruleSet []models.ValidationRule) *depGraph {
	g := &depGraph{
		nodes:    make(map[string]models.ValidationRule, len(ruleSet)),
		edges:    make(map[string][]string, len(ruleSet)),
		executed: make(map[string]bool),
	}
	for _, r := range ruleSet {
		g.nodes[r.ID] = r
		g.edges[r.ID] = r.Dependencies
	}
	return g
}

// ready returns the IDs of all not-yet-run rules whose dependencies are all
// executed, sorted by rule priority then ID for deterministic wave order.
func (g *depGraph) ready() []string {
	var out []string
	for id := range g.nodes {
		if g.executed[id] {
			continue
		}
		if g.satisfied(id) {
			out = append(out, id)
		}
	}
	g.sortByPriority(out)
	return out
}

// satisfied reports whether every dependency of the rule has executed.
// A dependency that names no rule in the set can never be satisfied.
func (g *depGraph) satisfied(id string) bool {
	for _, dep := range g.edges[id] {
		if !g.executed[dep] {
			return false
		}
	}
	return true
}

// remaining returns the IDs of all rules that have not run, sorted by
// priority then ID.
func (g *depGraph) remaining() []string {
	var out []string
	for id := range g.nodes {
		if !g.executed[id] {
			out = append(out, id)
		}
	}
	g.sortByPriority(out)
	return out
}

// markExecuted records that a rule has run, releasing its dependents.
func (g *depGraph) markExecuted(id string) {
	g.executed[id] = true
}

// rule returns the rule for an ID.
func (g *depGraph) rule(id string) models.ValidationRule {
	return g.nodes[id]
}

// sortByPriority orders IDs by rule priority (ascending), then ID.
func (g *depGraph) sortByPriority(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
}
