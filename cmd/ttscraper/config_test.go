package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"ttscraper/pkg/config"
)

func TestExampleConfigIsValid(t *testing.T) {
	cfg := config.DefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(exampleConfig), cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, cfg.TikTok.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Fetch.BackoffBase)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	require.Len(t, cfg.Server.APIKeys, 1)
	assert.True(t, cfg.Server.APIKeys[0].Active)
}

func TestMaskedConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TikTok.Cookie = "sessionid=abcdef1234567890; tt_csrf_token=xyz"
	cfg.Server.APIKeys = []config.APIKeyConfig{{Key: "prod-key-0123456789", Client: "acme", Active: true}}

	display := maskedConfig(cfg)

	assert.NotContains(t, display.TikTok.Cookie, "abcdef1234567890")
	assert.True(t, strings.HasPrefix(display.TikTok.Cookie, "sessionid="))
	assert.Equal(t, "prod...6789", display.Server.APIKeys[0].Key)
	assert.Equal(t, "acme", display.Server.APIKeys[0].Client)

	// the original is untouched
	assert.Equal(t, "prod-key-0123456789", cfg.Server.APIKeys[0].Key)
	assert.Contains(t, cfg.TikTok.Cookie, "abcdef1234567890")
}
