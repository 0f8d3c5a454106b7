package bootstrap

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"droidpilot/internal/config"
	"droidpilot/internal/device"
	"droidpilot/internal/provider"
	"droidpilot/internal/storage"
)

func newDevice(cfg config.DeviceConfig, logger *slog.Logger) (*device.HTTPDevice, error) {
	return device.NewHTTPDevice(device.HTTPOptions{
		BaseURL:         cfg.BaseURL,
		Timeout:         time.Duration(cfg.TimeoutMS) * time.Millisecond,
		WaitToStabilize: cfg.WaitToStabilize,
		Width:           cfg.Width,
		Height:          cfg.Height,
		Logger:          logger,
	})
}

func openAIConfig(m config.ModelConfig, logger *slog.Logger) provider.OpenAIConfig {
	return provider.OpenAIConfig{
		BaseURL:    m.BaseURL,
		APIKey:     m.APIKey,
		Model:      m.Model,
		TimeoutMS:  m.TimeoutMS,
		MaxRetries: m.MaxRetries,
		Logger:     logger,
	}
}

// openMirror returns nil when no redis_url is configured or redis cannot be
// reached; the mirror is optional.
func openMirror(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) *storage.RedisMirror {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	mirror, err := storage.NewRedisMirror(pingCtx, url, time.Duration(cfg.RedisTTLSeconds)*time.Second)
	if err != nil {
		logger.Warn("redis mirror disabled", "err", err)
		return nil
	}
	return mirror
}
