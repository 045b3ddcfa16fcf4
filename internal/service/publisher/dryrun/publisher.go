package dryrun

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/clock"
)

// DryRunPublisher logs the content it would publish and always succeeds.
type DryRunPublisher struct {
	logger *zap.Logger
	clock  clock.Clock
}

func NewDryRunPublisher(logger *zap.Logger, clk clock.Clock) publisher.PlatformPublisher {
	return &DryRunPublisher{logger: logger, clock: clk}
}

func (p *DryRunPublisher) GetPlatformName() string {
	return "dry-run"
}

func (p *DryRunPublisher) ValidateConfig(publisher.PublishConfig) error {
	return nil
}

func (p *DryRunPublisher) PublishDirect(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig) (*publisher.PublishResult, error) {
	return p.publish(ctx, content, config, false)
}

func (p *DryRunPublisher) RetryDirect(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig) (*publisher.PublishResult, error) {
	return p.publish(ctx, content, config, true)
}

func (p *DryRunPublisher) publish(ctx context.Context, content publisher.PublishContent, config publisher.PublishConfig, retry bool) (*publisher.PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Info("Dry-run publish",
		zap.String("content_id", content.ID),
		zap.String("platform", config.PlatformName),
		zap.Bool("retry", retry),
		zap.Strings("hashtags", content.Hashtags),
		zap.Int("media", len(content.Media)))

	return publisher.Succeeded(fmt.Sprintf("dry-run-%s", content.ID), "", p.clock.Now()), nil
}
