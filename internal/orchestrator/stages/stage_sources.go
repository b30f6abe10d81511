package stages

import (
	"context"

	"git.home.luguber.info/inful/meshpack/internal/config"
	"git.home.luguber.info/inful/meshpack/internal/git"
	"git.home.luguber.info/inful/meshpack/internal/logfields"
	"git.home.luguber.info/inful/meshpack/internal/orchestrator/models"
)

// CheckoutFor returns the configured checkout backing component c.
func CheckoutFor(cfg *config.Config, c models.Component) config.Checkout {
	if c == models.ComponentControlPlane {
		return cfg.Sources.ControlPlane
	}
	return cfg.Sources.Tunnel
}

// StageSources ensures the checkout of every planned component, in component order.
func StageSources(ctx context.Context, rs *models.RunState) error {
	for _, c := range rs.Plan.Components {
		co := CheckoutFor(rs.Config, c)
		outcome, err := rs.Stager.Ensure(ctx, co)
		if err != nil {
			return stageFailure(ctx, models.StageSources, err)
		}
		rs.Report.Checkouts[co.Name] = string(outcome)
		rs.Report.Artifacts = append(rs.Report.Artifacts, models.Artifact{
			Kind:   models.ArtifactCheckout,
			Owner:  co.Name,
			Path:   co.Path,
			Reused: outcome != git.OutcomeCloned,
		})
		rs.Logger.Info("Checkout ready",
			logfields.Component(string(c)),
			logfields.Path(co.Path),
			logfields.Ref(co.Ref),
			"outcome", string(outcome))
	}
	return nil
}
