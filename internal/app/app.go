// Package app wires configuration into the pieces shared by cmd/server and
// cmd/worker.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/codemate/internal/ai"
	"github.com/suPer8Hu/codemate/internal/chat"
	"github.com/suPer8Hu/codemate/internal/config"
	"github.com/suPer8Hu/codemate/internal/sandbox"
	"github.com/suPer8Hu/codemate/internal/store/redisstore"
	"go.uber.org/zap"
)

// Registry registers every provider the config knows how to build.
func Registry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("openrouter", func(_ context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	return reg
}

// Provider returns the provider selected by AI_PROVIDER.
func Provider(ctx context.Context, cfg config.Config) (ai.Provider, error) {
	p, err := Registry(cfg).Get(ctx, cfg.AIProvider, "")
	if err != nil {
		return nil, fmt.Errorf("select provider: %w", err)
	}
	return p, nil
}

// TopicStore returns the Redis topic store, or an in-memory one when no
// Redis address is configured. The close func is always safe to call.
func TopicStore(ctx context.Context, cfg config.Config, log *zap.Logger) (chat.TopicStore, func() error, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Warn("REDIS_ADDR empty, interview topics are kept in memory")
		return chat.NewMemoryTopicStore(), func() error { return nil }, nil
	}

	rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.InterviewTTL)
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		_ = rs.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return rs, rs.Close, nil
}

// Runner builds the container sandbox.
func Runner(cfg config.Config) sandbox.Runner {
	return sandbox.NewContainerRunner(sandbox.ContainerConfig{
		Runtime:   cfg.SandboxRuntime,
		Image:     cfg.SandboxImage,
		Memory:    cfg.SandboxMemory,
		CPUs:      cfg.SandboxCPUs,
		Timeout:   cfg.SandboxTimeout,
		MaxOutput: cfg.SandboxMaxOutput,
	})
}
