package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/cadence/internal/models"
)

type recordingPublisher struct {
	name      string
	calls     []string
	platforms []string
	err       error
}

func (p *recordingPublisher) GetPlatformName() string { return p.name }

func (p *recordingPublisher) ValidateConfig(config PublishConfig) error {
	if config.Config["reject"] != "" {
		return errors.New("rejected")
	}
	return nil
}

func (p *recordingPublisher) PublishDirect(_ context.Context, content PublishContent, config PublishConfig) (*PublishResult, error) {
	p.calls = append(p.calls, "publish:"+content.ID)
	p.platforms = append(p.platforms, config.PlatformName)
	if p.err != nil {
		return nil, p.err
	}
	return Succeeded("pub-"+content.ID, "https://example.test/"+content.ID, time.Unix(0, 0)), nil
}

func (p *recordingPublisher) RetryDirect(_ context.Context, content PublishContent, config PublishConfig) (*PublishResult, error) {
	p.calls = append(p.calls, "retry:"+content.ID)
	p.platforms = append(p.platforms, config.PlatformName)
	return Succeeded("pub-"+content.ID, "", time.Unix(0, 0)), nil
}

func TestManager_RoutesByPlatform(t *testing.T) {
	m := NewPublishManager(zap.NewNop())
	rec := &recordingPublisher{name: "relay"}
	require.NoError(t, m.RegisterPublisher(rec, PublishConfig{Enabled: true}, "Instagram", "facebook"))

	res := m.Publish(context.Background(), PublishContent{ID: "p1"}, "instagram")
	require.True(t, res.Success)
	assert.Equal(t, "pub-p1", res.PublishID)

	res = m.RetryPublish(context.Background(), PublishContent{ID: "p2"}, "FACEBOOK")
	require.True(t, res.Success)

	assert.Equal(t, []string{"publish:p1", "retry:p2"}, rec.calls)
	assert.Equal(t, []string{"instagram", "facebook"}, rec.platforms)
	assert.ElementsMatch(t, []string{"instagram", "facebook"}, m.Platforms())
}

func TestManager_DuplicateRegistration(t *testing.T) {
	m := NewPublishManager(zap.NewNop())
	require.NoError(t, m.RegisterPublisher(&recordingPublisher{name: "a"}, PublishConfig{Enabled: true}, "tiktok"))
	assert.Error(t, m.RegisterPublisher(&recordingPublisher{name: "b"}, PublishConfig{Enabled: true}, "tiktok"))
}

func TestManager_InvalidConfig(t *testing.T) {
	m := NewPublishManager(zap.NewNop())
	err := m.RegisterPublisher(&recordingPublisher{name: "a"}, PublishConfig{Config: map[string]string{"reject": "1"}})
	assert.Error(t, err)
}

func TestManager_FailuresAreResults(t *testing.T) {
	m := NewPublishManager(zap.NewNop())
	failing := &recordingPublisher{name: "relay", err: errors.New("token expired")}
	require.NoError(t, m.RegisterPublisher(failing, PublishConfig{Enabled: true}, "linkedin"))

	res := m.Publish(context.Background(), PublishContent{ID: "p1"}, "linkedin")
	assert.False(t, res.Success)
	assert.Equal(t, "token expired", res.Reason())

	res = m.Publish(context.Background(), PublishContent{ID: "p1"}, "myspace")
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason(), "not found")

	require.NoError(t, m.SetEnabled("linkedin", false))
	res = m.Publish(context.Background(), PublishContent{ID: "p1"}, "linkedin")
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason(), "disabled")
	assert.Len(t, failing.calls, 1)
}

func TestPublishResult_Reason(t *testing.T) {
	var nilResult *PublishResult
	assert.NotEmpty(t, nilResult.Reason())
	assert.Empty(t, Succeeded("x", "", time.Time{}).Reason())
	assert.Equal(t, "unknown error", (&PublishResult{}).Reason())
}

func TestFromPost(t *testing.T) {
	rec := "rec-1"
	day := models.NewDate(2024, time.January, 15)
	post := &models.Post{
		ID:             "post-1",
		RecurrenceID:   &rec,
		Title:          "Monday",
		Content:        "Go!",
		Hashtags:       models.StringArray{"#go"},
		Platform:       "instagram",
		OccurrenceDate: &day,
	}

	content := FromPost(post)
	assert.Equal(t, "post-1", content.ID)
	assert.Equal(t, []string{"#go"}, content.Hashtags)
	assert.Equal(t, "rec-1", content.Metadata["recurrence_id"])
	assert.Equal(t, "2024-01-15", content.Metadata["occurrence_date"])
}
