package models

import (
	"git.home.luguber.info/inful/meshpack/internal/foundation/errors"
	"git.home.luguber.info/inful/meshpack/internal/foundation/normalization"
)

// Target selects which part of the package a run rebuilds.
type Target string

const (
	TargetFull         Target = "full"
	TargetTunnel       Target = "tunnel"
	TargetControlPlane Target = "control-plane"
)

var targetNormalizer = normalization.NewNormalizer(map[string]Target{
	"full":          TargetFull,
	"tunnel":        TargetTunnel,
	"tinc":          TargetTunnel,
	"control-plane": TargetControlPlane,
	"control_plane": TargetControlPlane,
	"dnet":          TargetControlPlane,
}, "")

// ParseTarget maps the positional command-line argument to a Target.
// The empty string selects TargetFull.
func ParseTarget(raw string) (Target, error) {
	if raw == "" {
		return TargetFull, nil
	}
	t, err := targetNormalizer.Parse(raw)
	if err != nil {
		return "", errors.WrapError(err, errors.CategoryValidation, "unknown target").
			WithContext("target", raw).
			Build()
	}
	return t, nil
}

// Targets lists the canonical targets.
func Targets() []Target {
	return []Target{TargetFull, TargetTunnel, TargetControlPlane}
}

// Component is an independently buildable part of the package.
type Component string

const (
	ComponentTunnel       Component = "tunnel"
	ComponentControlPlane Component = "control-plane"
)

// Components lists every component in build order.
func Components() []Component {
	return []Component{ComponentTunnel, ComponentControlPlane}
}
