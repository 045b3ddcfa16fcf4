package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Manager routes publish calls to the PlatformPublisher registered for a platform.
type Manager struct {
	mu         sync.RWMutex
	publishers map[string]PlatformPublisher
	configs    map[string]PublishConfig
	logger     *zap.Logger
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]PlatformPublisher),
		configs:    make(map[string]PublishConfig),
		logger:     logger,
	}
}

// RegisterPublisher binds publisher to each of the given platforms. With no
// platforms it is bound to its own platform name.
func (m *Manager) RegisterPublisher(publisher PlatformPublisher, config PublishConfig, platforms ...string) error {
	if err := publisher.ValidateConfig(config); err != nil {
		return fmt.Errorf("invalid config for %s: %w", publisher.GetPlatformName(), err)
	}

	if len(platforms) == 0 {
		platforms = []string{publisher.GetPlatformName()}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, platform := range platforms {
		platform = normalize(platform)
		if _, exists := m.publishers[platform]; exists {
			return fmt.Errorf("publisher for platform %s already registered", platform)
		}
	}

	for _, platform := range platforms {
		platform = normalize(platform)
		m.publishers[platform] = publisher
		m.configs[platform] = config
		m.logger.Info("Publisher registered",
			zap.String("platform", platform),
			zap.String("publisher", publisher.GetPlatformName()))
	}

	return nil
}

func (m *Manager) GetPublisher(platformName string) (PlatformPublisher, PublishConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	platformName = normalize(platformName)
	publisher, exists := m.publishers[platformName]
	if !exists {
		return nil, PublishConfig{}, fmt.Errorf("publisher for platform %s not found", platformName)
	}
	return publisher, m.configs[platformName], nil
}

// SetEnabled toggles a platform without unregistering it.
func (m *Manager) SetEnabled(platformName string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	platformName = normalize(platformName)
	cfg, exists := m.configs[platformName]
	if !exists {
		return fmt.Errorf("config for platform %s not found", platformName)
	}
	cfg.Enabled = enabled
	m.configs[platformName] = cfg
	return nil
}

// Platforms lists the platforms with a registered publisher.
func (m *Manager) Platforms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	platforms := make([]string, 0, len(m.publishers))
	for name := range m.publishers {
		platforms = append(platforms, name)
	}
	return platforms
}

func (m *Manager) Publish(ctx context.Context, content PublishContent, platform string) *PublishResult {
	return m.dispatch(ctx, content, platform, false)
}

func (m *Manager) RetryPublish(ctx context.Context, content PublishContent, platform string) *PublishResult {
	return m.dispatch(ctx, content, platform, true)
}

func (m *Manager) dispatch(ctx context.Context, content PublishContent, platform string, retry bool) *PublishResult {
	publisher, config, err := m.GetPublisher(platform)
	if err != nil {
		m.logger.Error("Publisher not found", zap.String("platform", platform), zap.Error(err))
		return Failed(err)
	}

	if !config.Enabled {
		m.logger.Info("Platform disabled, skipping", zap.String("platform", platform))
		return Failed(fmt.Errorf("platform %s is disabled", platform))
	}

	// One publisher may serve several platforms; tell it which one this call is for
	config.PlatformName = normalize(platform)

	var result *PublishResult
	if retry {
		result, err = publisher.RetryDirect(ctx, content, config)
	} else {
		result, err = publisher.PublishDirect(ctx, content, config)
	}

	if err != nil {
		m.logger.Error("Failed to publish content",
			zap.String("platform", platform),
			zap.String("content_id", content.ID),
			zap.Bool("retry", retry),
			zap.Error(err))
		return Failed(err)
	}
	if result == nil {
		return Failed(fmt.Errorf("publisher %s returned no result", publisher.GetPlatformName()))
	}

	m.logger.Info("Publishing completed",
		zap.String("platform", platform),
		zap.String("content_id", content.ID),
		zap.Bool("retry", retry),
		zap.Bool("success", result.Success),
		zap.String("publish_id", result.PublishID))

	return result
}

func normalize(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
