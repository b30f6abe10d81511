package models

import (
	"slices"
	"strings"
)

// Plan is the ordered list of stages and the component set for one run.
// It is computed from the target and init flag and has no side effects.
type Plan struct {
	Target     Target
	Init       bool
	Stages     []StageName
	Components []Component
}

// Has reports whether stage is part of the plan.
func (p Plan) Has(stage StageName) bool { return slices.Contains(p.Stages, stage) }

// Builds reports whether component is part of the plan.
func (p Plan) Builds(c Component) bool { return slices.Contains(p.Components, c) }

// ForceProvision reports whether provisioning redoes dependencies whose
// artifacts are already staged.
func (p Plan) ForceProvision() bool { return p.Init }

// String renders the plan on one line, e.g. "full: provision -> sources -> build -> assemble".
func (p Plan) String() string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = string(s)
	}
	return string(p.Target) + ": " + strings.Join(names, " -> ")
}
