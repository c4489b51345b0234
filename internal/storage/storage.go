package storage

import "swaprouter/internal/model"

// PlanSink receives routed plans for auditing.
type PlanSink interface {
	PutPlans(records []model.PlanRecord) error
}

// NopSink discards every plan.
type NopSink struct{}

func (NopSink) PutPlans([]model.PlanRecord) error { return nil }
