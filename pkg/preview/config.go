package preview

import (
	"go.uber.org/zap"

	"github.com/taigrr/brickview/internal/config"
	"github.com/taigrr/brickview/pkg/loader"
	"github.com/taigrr/brickview/pkg/parts"
	"github.com/taigrr/brickview/pkg/source"
	"github.com/taigrr/brickview/pkg/viewport"
)

// OptionsFromConfig builds preview options from the application config.
// Bundled assets are materialized under assetDir; an empty assetDir reads
// them straight from the binary.
func OptionsFromConfig(cfg *config.Config, assetDir string, log *zap.Logger) Options {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}

	fetcher := parts.NewFetcher(
		parts.WithCache(parts.NewCache(cfg.Parts.CacheEntries)),
		parts.WithTimeout(cfg.Parts.FetchTimeout),
		parts.WithLogger(log.Named("parts")),
	)
	ld := loader.New(parts.NewMapper(cfg.Parts.BaseURL), fetcher,
		loader.WithLogger(log.Named("loader")),
		loader.WithConcurrency(cfg.Parts.Concurrency),
	)

	return Options{
		Resolver:       source.NewResolver(assetDir, log.Named("source")),
		Loader:         ld,
		LayerTolerance: cfg.Steps.LayerTolerance,
		Logger:         log,
		Viewport: viewport.Options{
			BaseMultiplier: cfg.Viewport.BaseMultiplier,
			MinZoom:        cfg.Viewport.MinZoom,
			MaxZoom:        cfg.Viewport.MaxZoom,
			FPS:            cfg.Viewport.FPS,
			FOV:            cfg.Viewport.FOV,
			Logger:         log.Named("viewport"),
		},
	}
}
