package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" OpenRouter ", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenRouterProvider("", "k", model, "", ""), nil
	})

	p, err := reg.Get(context.Background(), "openrouter", "openai/gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, "openai/gpt-4o-mini", p.(*OpenRouterProvider).Model)
	assert.Equal(t, []string{"openrouter"}, reg.Names())

	_, err = reg.Get(context.Background(), "nope", "")
	assert.Error(t, err)
}
