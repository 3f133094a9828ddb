package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "file", config.StoreBackend)
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 0, config.RedisDB)
	assert.Equal(t, "localhost:11211", config.MemcacheAddr)
	assert.Equal(t, "static", config.BrowserDriver)
	assert.Equal(t, 2*time.Second, config.SettleDelay)
	assert.Equal(t, 500, config.MaxIterations)
	assert.Equal(t, "positive-only", config.ImageCachePolicy)
	assert.Equal(t, "paginated", config.ImageRevisit)
	assert.NoError(t, config.Validate())

	// Test with environment variables
	os.Setenv("STORE_BACKEND", "redis")
	os.Setenv("REDIS_DB", "1")
	os.Setenv("SETTLE_DELAY", "3")
	os.Setenv("CLASSIFIER_TIMEOUT", "1500ms")
	os.Setenv("SMALL_IMAGE_KB", "12")
	os.Setenv("REPORT_PUBLISH", "true")

	config = LoadConfig()
	assert.Equal(t, "redis", config.StoreBackend)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, 3*time.Second, config.SettleDelay)
	assert.Equal(t, 1500*time.Millisecond, config.ClassifierTimeout)
	assert.Equal(t, 12, config.SmallImageKB)
	assert.True(t, config.ReportPublish)

	// Clean up
	os.Unsetenv("STORE_BACKEND")
	os.Unsetenv("REDIS_DB")
	os.Unsetenv("SETTLE_DELAY")
	os.Unsetenv("CLASSIFIER_TIMEOUT")
	os.Unsetenv("SMALL_IMAGE_KB")
	os.Unsetenv("REPORT_PUBLISH")
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown store", func(c *Config) { c.StoreBackend = "s3" }, "STORE_BACKEND"},
		{"unknown driver", func(c *Config) { c.BrowserDriver = "selenium" }, "BROWSER_DRIVER"},
		{"unknown policy", func(c *Config) { c.ImageCachePolicy = "sometimes" }, "IMAGE_CACHE_POLICY"},
		{"unknown revisit", func(c *Config) { c.ImageRevisit = "maybe" }, "IMAGE_REVISIT"},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, "MAX_ITERATIONS"},
		{"zero threshold", func(c *Config) { c.SmallImageKB = 0 }, "SMALL_IMAGE_KB"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := LoadConfig()
			tc.mutate(c)
			err := c.Validate()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
