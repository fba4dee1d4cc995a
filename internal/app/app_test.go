package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/codemate/internal/ai"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/config"
	"go.uber.org/zap"
)

func TestProvider_SelectsByName(t *testing.T) {
	cfg := config.Config{AIProvider: "OpenRouter", OpenRouterModel: "m1", OllamaModel: "m2"}

	p, err := Provider(context.Background(), cfg)
	require.NoError(t, err)
	or, ok := p.(*ai.OpenRouterProvider)
	require.True(t, ok)
	assert.Equal(t, "m1", or.Model)

	cfg.AIProvider = "ollama"
	p, err = Provider(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &ai.OllamaProvider{}, p)

	cfg.AIProvider = "gpt-local"
	_, err = Provider(context.Background(), cfg)
	assert.ErrorContains(t, err, "gpt-local")
}

func TestTopicStore_MemoryWithoutRedis(t *testing.T) {
	ts, closeFn, err := TopicStore(context.Background(), config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &chat.MemoryTopicStore{}, ts)
	assert.NoError(t, closeFn())
}

func TestTopicStore_UnreachableRedis(t *testing.T) {
	_, _, err := TopicStore(context.Background(), config.Config{RedisAddr: "127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}
