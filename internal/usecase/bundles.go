package usecase

import (
	"context"
	"fmt"

	dm "AdaptiveEnsemble/internal/domain/models"
	"AdaptiveEnsemble/internal/services/training"
	applogger "AdaptiveEnsemble/pkg/logger"
)

// SaveBundle persists the active bundle and returns its id.
func (c *Core) SaveBundle(ctx context.Context) (string, error) {
	if c.bundles == nil {
		return "", fmt.Errorf("save bundle: no bundle store configured")
	}
	b := c.active.Load()
	if b == nil {
		return "", dm.Errorf(dm.KindNoActiveBundle, "nothing to save")
	}
	blob, err := training.MarshalBundle(b)
	if err != nil {
		return "", err
	}
	if err := c.bundles.Save(ctx, b.ID, blob); err != nil {
		c.fail("save_bundle", err)
		return "", fmt.Errorf("save bundle: %w", err)
	}
	c.logger.Info("bundle saved",
		applogger.String("bundle_id", b.ID),
		applogger.Int("bytes", len(blob)),
	)
	return b.ID, nil
}

// LoadBundle reads a bundle and activates it. An empty id loads the latest one.
func (c *Core) LoadBundle(ctx context.Context, id string) (*training.Bundle, error) {
	if c.bundles == nil {
		return nil, fmt.Errorf("load bundle: no bundle store configured")
	}
	if id == "" {
		latest, err := c.bundles.LatestID(ctx)
		if err != nil {
			return nil, fmt.Errorf("latest bundle: %w", err)
		}
		id = latest
	}
	blob, err := c.bundles.Load(ctx, id)
	if err != nil {
		c.fail("load_bundle", err)
		return nil, fmt.Errorf("load bundle: %w", err)
	}
	b, err := training.UnmarshalBundle(blob)
	if err != nil {
		c.fail("load_bundle", err)
		return nil, err
	}
	c.Activate(b)
	c.logger.Info("bundle loaded", applogger.String("bundle_id", b.ID))
	return b, nil
}
