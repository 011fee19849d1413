package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := newConfig()
	assert.Equal(t, selectTimeout, cfg.selectTimeout)
	assert.NotNil(t, cfg.logger)
	assert.Zero(t, cfg.queueCapHint)
}

func TestWithSelectTimeout_IgnoresNonPositive(t *testing.T) {
	cfg := newConfig()
	WithSelectTimeout(250 * time.Millisecond)(cfg)
	assert.Equal(t, 250*time.Millisecond, cfg.selectTimeout)

	WithSelectTimeout(0)(cfg)
	assert.Equal(t, 250*time.Millisecond, cfg.selectTimeout, "a non-positive override must be ignored")

	WithSelectTimeout(-time.Second)(cfg)
	assert.Equal(t, 250*time.Millisecond, cfg.selectTimeout)
}

func TestWithQueueCapacityHint_IgnoresNonPositive(t *testing.T) {
	cfg := newConfig()
	WithQueueCapacityHint(64)(cfg)
	assert.Equal(t, 64, cfg.queueCapHint)

	WithQueueCapacityHint(0)(cfg)
	assert.Equal(t, 64, cfg.queueCapHint)

	WithQueueCapacityHint(-1)(cfg)
	assert.Equal(t, 64, cfg.queueCapHint)
}

func TestWithLogger_IgnoresNil(t *testing.T) {
	cfg := newConfig()
	original := cfg.logger
	WithLogger(nil)(cfg)
	assert.Same(t, original, cfg.logger)
}
