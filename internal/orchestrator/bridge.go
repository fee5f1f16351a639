package orchestrator

import (
	"context"

	"github.com/automaker/engine/internal/feature"
	"github.com/automaker/engine/internal/mcpbridge"
)

// Callbacks builds the mcpbridge.Callbacks bound to this Orchestrator,
// applying the skipTests status policy before persisting whatever status
// an in-progress agent reports (spec.md §4.4, §4.5.3).
func (o *Orchestrator) Callbacks(projectPath string) mcpbridge.Callbacks {
	return mcpbridge.Callbacks{
		UpdateStatus: func(ctx context.Context, featureID string, status feature.Status, summary, errMsg *string) (feature.Status, error) {
			resolved, err := o.SkipTestsStatusPolicy(projectPath, featureID, status)
			if err != nil {
				return status, err
			}
			if _, err := o.Store.SetStatus(projectPath, featureID, resolved, summary, errMsg); err != nil {
				return status, err
			}
			return resolved, nil
		},
		UpdatePlan: func(ctx context.Context, featureID string, plan feature.PlanSpec) error {
			planPtr := &plan
			_, err := o.Store.Update(projectPath, featureID, feature.Partial{PlanSpec: &planPtr})
			return err
		},
		AttachFile: func(ctx context.Context, featureID string, relPath string) error {
			f, err := o.Store.Get(projectPath, featureID)
			if err != nil {
				return err
			}
			if f == nil {
				return nil
			}
			refs := append([]feature.ImageRef{}, f.ImagePaths...)
			refs = append(refs, feature.ImageRef{Path: relPath})
			_, err = o.Store.Update(projectPath, featureID, feature.Partial{ImagePaths: &refs})
			return err
		},
	}
}
