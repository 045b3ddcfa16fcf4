package dryrun

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/service/publisher"
	"github.com/ifuryst/cadence/pkg/clock"
)

func TestDryRunPublisher(t *testing.T) {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	p := NewDryRunPublisher(zap.NewNop(), clock.NewFixed(now))

	res, err := p.PublishDirect(context.Background(), publisher.PublishContent{ID: "post-1"}, publisher.PublishConfig{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "dry-run-post-1", res.PublishID)
	assert.Equal(t, now, res.PublishedAt)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.RetryDirect(ctx, publisher.PublishContent{ID: "post-1"}, publisher.PublishConfig{})
	assert.ErrorIs(t, err, context.Canceled)
}
