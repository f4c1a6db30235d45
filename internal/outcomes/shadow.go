package outcomes

import (
	"context"

	"github.com/Ohseho81/autus-sub014/internal/deliverylog"
	"github.com/Ohseho81/autus-sub014/internal/policy"
	dErrors "github.com/Ohseho81/autus-sub014/pkg/domain-errors"
)

// ShadowRequest is one approval request awaiting an automatic verdict.
type ShadowRequest struct {
	Category string          `json:"category"`
	TenantID string          `json:"tenant_id"`
	EntityID string          `json:"entity_id"`
	Context  map[string]bool `json:"context"`
}

// EvaluateShadow runs the rule-table verdict for an approval request and
// logs the decision. Pending verdicts wait for the named authority; nothing
// is enqueued here.
func (s *Service) EvaluateShadow(ctx context.Context, req ShadowRequest) (policy.ShadowDecision, error) {
	if req.Category == "" {
		return policy.ShadowDecision{}, dErrors.New(dErrors.CodeBadRequest, "category is required")
	}
	decision, err := s.rules.EvaluateShadow(req.Category, req.Context)
	if err != nil {
		return policy.ShadowDecision{}, err
	}
	if s.recorder != nil {
		s.recorder.Record(ctx, deliverylog.Event{
			Kind:     deliverylog.KindShadowEvaluated,
			EntityID: req.EntityID,
			TenantID: req.TenantID,
			Detail:   req.Category + ":" + string(decision.Decision),
		})
	}
	s.logger.InfoContext(ctx, "shadow request evaluated",
		"category", req.Category,
		"decision", decision.Decision,
		"authority", decision.Authority,
	)
	return decision, nil
}
