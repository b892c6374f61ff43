package usecase

import (
	"context"

	dm "AdaptiveEnsemble/internal/domain/models"
	domsvc "AdaptiveEnsemble/internal/domain/service"
	"AdaptiveEnsemble/internal/services/training"
)

// ModelPolicy trades the model's own predictions. It trains a private bundle
// through a sink-free copy of the core's trainer, so neither the active bundle
// nor the online learner and performance log of the facade change during a run.
//
// In a single pass the bundle is reused until the training slice has moved
// forward by refreshBars. In a walk-forward run every fold refits on its own
// training window.
type ModelPolicy struct {
	core           *Core
	trainer        *training.Trainer
	horizonMinutes int
	refreshBars    int

	bundle  *training.Bundle
	fits    int
	trained int // bars seen when bundle was fit
	seen    int
	lastEnd int64
}

var _ domsvc.FoldPolicy = (*ModelPolicy)(nil)

// NewModelPolicy creates a policy backed by core's trainer and predictor.
func (c *Core) NewModelPolicy(horizonMinutes, refreshBars int) *ModelPolicy {
	if horizonMinutes <= 0 {
		horizonMinutes = c.cfg.HorizonMinutes
	}
	if refreshBars <= 0 {
		refreshBars = 1
	}
	return &ModelPolicy{
		core:           c,
		trainer:        c.trainer.WithoutSinks(),
		horizonMinutes: horizonMinutes,
		refreshBars:    refreshBars,
	}
}

// Fits is the number of bundles trained so far.
func (p *ModelPolicy) Fits() int { return p.fits }

// BeginFold refits on the fold's training window.
func (p *ModelPolicy) BeginFold(ctx context.Context, train dm.Frame) error {
	p.bundle = nil
	if last, ok := train.Last(); ok {
		p.lastEnd = last.Timestamp.UnixNano()
	}
	return p.refit(ctx, train)
}

func (p *ModelPolicy) Decide(ctx context.Context, train dm.Frame, row dm.Candle) (*dm.TradeIntent, error) {
	last, ok := train.Last()
	if !ok {
		return nil, nil
	}
	if end := last.Timestamp.UnixNano(); end != p.lastEnd {
		p.lastEnd = end
		p.seen++
	}
	if p.bundle == nil || p.seen-p.trained >= p.refreshBars {
		if err := p.refit(ctx, train); err != nil {
			return nil, err
		}
	}

	bars := make([]dm.Candle, 0, train.Len()+1)
	bars = append(append(bars, train.Bars...), row)
	pred, err := p.core.predictor.Predict(p.bundle, dm.NewFrame(train.Symbol, bars))
	if err != nil {
		return nil, err
	}
	intent := p.core.Intent(pred, 0)
	intent.SizeHint = 0
	intent.CreatedAt = row.Timestamp
	return &intent, nil
}

func (p *ModelPolicy) refit(ctx context.Context, train dm.Frame) error {
	b, err := p.trainer.Train(ctx, train, p.horizonMinutes)
	if err != nil {
		return err
	}
	p.bundle, p.trained = b, p.seen
	p.fits++
	return nil
}
