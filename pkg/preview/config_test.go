package preview

import (
	"testing"

	"github.com/taigrr/brickview/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Steps.LayerTolerance = 12
	cfg.Viewport.BaseMultiplier = 2
	cfg.Viewport.FPS = 60

	opts := OptionsFromConfig(cfg, t.TempDir(), nil)
	if opts.Loader == nil || opts.Resolver == nil {
		t.Fatal("loader and resolver must be set")
	}
	if got := opts.Loader.Mapper().Base; got != cfg.Parts.BaseURL {
		t.Errorf("mapper base = %q, want %q", got, cfg.Parts.BaseURL)
	}
	if opts.LayerTolerance != 12 {
		t.Errorf("LayerTolerance = %v, want 12", opts.LayerTolerance)
	}
	if opts.Viewport.BaseMultiplier != 2 || opts.Viewport.FPS != 60 {
		t.Errorf("viewport options = %+v", opts.Viewport)
	}

	p := New(OptionsFromConfig(nil, "", nil))
	p.Unmount()
}
