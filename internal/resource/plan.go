package resource

import (
	"fmt"
	"strings"
)

// Match pairs a target resource with a live resource that has a different id
// but identical fields. Matched pairs need no remote call.
type Match struct {
	TargetID  string
	CurrentID string
}

// Plan is the set of remote calls that make a live collection match a target
// snapshot. Create, Update and Delete are disjoint.
type Plan struct {
	Kind    Kind
	Create  []Resource
	Update  []Resource
	Delete  []string
	Matched []Match
}

// Diff computes the plan that turns current into target.
//
// Resources present in both snapshots are updated when their fields differ.
// A target-only resource whose fields equal a current-only resource is paired
// with it instead of being recreated, so a restore followed by another
// restore of the same snapshot issues no calls even though the first restore
// assigned new ids. Remaining target-only resources are created and remaining
// current-only resources are deleted. All lists are ordered by id.
func Diff(current, target Snapshot) Plan {
	plan := Plan{Kind: target.Kind}

	var targetOnly []Resource
	for _, id := range target.IDs() {
		want := target.Resources[id]
		have, ok := current.Resources[id]
		if !ok {
			targetOnly = append(targetOnly, want)
			continue
		}
		if !have.Equal(want) {
			plan.Update = append(plan.Update, want)
		}
	}

	var currentOnly []string
	for _, id := range current.IDs() {
		if _, ok := target.Resources[id]; !ok {
			currentOnly = append(currentOnly, id)
		}
	}

	paired := make(map[string]bool, len(currentOnly))
	for _, want := range targetOnly {
		matched := false
		for _, id := range currentOnly {
			if paired[id] || !current.Resources[id].Equal(want) {
				continue
			}
			paired[id] = true
			plan.Matched = append(plan.Matched, Match{TargetID: want.ID, CurrentID: id})
			matched = true
			break
		}
		if !matched {
			plan.Create = append(plan.Create, want)
		}
	}

	for _, id := range currentOnly {
		if !paired[id] {
			plan.Delete = append(plan.Delete, id)
		}
	}
	return plan
}

// Empty reports whether the plan issues no remote calls.
func (p Plan) Empty() bool {
	return len(p.Create) == 0 && len(p.Update) == 0 && len(p.Delete) == 0
}

// Calls returns the number of remote calls the plan issues.
func (p Plan) Calls() int {
	return len(p.Create) + len(p.Update) + len(p.Delete)
}

// String summarizes the plan on one line.
func (p Plan) String() string {
	return fmt.Sprintf("%s: %d to create, %d to update, %d to delete, %d unchanged",
		p.Kind, len(p.Create), len(p.Update), len(p.Delete), len(p.Matched))
}

// Describe renders the plan one call per line, with field diffs for updates
// taken against current.
func (p Plan) Describe(current Snapshot) string {
	var b strings.Builder
	for _, id := range p.Delete {
		fmt.Fprintf(&b, "  - delete %s %s (%s)\n", p.Kind.Singular(), id, current.Resources[id].Name())
	}
	for _, r := range p.Create {
		fmt.Fprintf(&b, "  + create %s %s\n", p.Kind.Singular(), r.Name())
	}
	for _, r := range p.Update {
		fmt.Fprintf(&b, "  ~ update %s %s (%s)\n", p.Kind.Singular(), r.ID, r.Name())
		for _, line := range strings.Split(strings.TrimRight(current.Resources[r.ID].Diff(r), "\n"), "\n") {
			fmt.Fprintf(&b, "      %s\n", line)
		}
	}
	return b.String()
}
