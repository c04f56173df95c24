package viewport

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/taigrr/brickview/pkg/render"
)

// Surface is where the render loop presents frames.
type Surface interface {
	// Size returns the drawable size in pixels. Zero means the surface
	// has not been laid out yet.
	Size() (width, height int)
	Present(fb *render.Framebuffer) error
}

// Run renders to s at the configured frame rate until ctx is done. No
// framebuffer is created until s reports a nonzero size, and the
// framebuffer follows later size changes.
func (c *Controller) Run(ctx context.Context, s Surface) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.opts.FPS))
	defer ticker.Stop()

	var (
		fb *render.Framebuffer
		r  *render.Rasterizer
	)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
		}

		w, h := s.Size()
		if w <= 0 || h <= 0 {
			continue
		}
		if fb == nil || fb.Width != w || fb.Height != h {
			if fb == nil {
				c.log.Debug("surface ready", zap.Int("width", w), zap.Int("height", h))
			}
			fb = render.NewFramebuffer(w, h)
			r = c.NewRasterizer(fb)
		}

		c.Draw(r, fb)
		if err := s.Present(fb); err != nil {
			return err
		}
	}
}
