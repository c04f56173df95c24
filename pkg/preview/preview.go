// Package preview ties source resolution, loading, step partitioning and
// the viewport together behind a source identifier, the way an embedded
// preview widget is driven by its host.
package preview

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/taigrr/brickview/internal/config"
	"github.com/taigrr/brickview/pkg/loader"
	"github.com/taigrr/brickview/pkg/parts"
	"github.com/taigrr/brickview/pkg/scene"
	"github.com/taigrr/brickview/pkg/source"
	"github.com/taigrr/brickview/pkg/steps"
	"github.com/taigrr/brickview/pkg/viewport"
)

// Options configures a Preview.
type Options struct {
	Resolver       *source.Resolver
	Loader         *loader.Loader
	Viewport       viewport.Options
	LayerTolerance float64 // LDraw units; zero uses steps.DefaultTolerance
	Logger         *zap.Logger

	// OnStepCountChange is called once per committed load with the number
	// of assembly steps.
	OnStepCountChange func(count int)
}

// Preview shows the model named by a source identifier. At most one load
// is active: changing the source invalidates the previous load, and a
// superseded load's scene is disposed instead of displayed.
type Preview struct {
	resolver  *source.Resolver
	loader    *loader.Loader
	view      *viewport.Controller
	tolerance float64
	onSteps   func(int)
	log       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	id        string
	tok       *loader.Token
	lastErr   error
	unmounted bool
}

// New creates a preview showing the placeholder.
func New(opts Options) *Preview {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Viewport.Logger == nil {
		opts.Viewport.Logger = log
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = source.NewResolver("", log)
	}
	ld := opts.Loader
	if ld == nil {
		ld = loader.New(parts.NewMapper(config.DefaultPartsBase), nil, loader.WithLogger(log))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Preview{
		resolver:  resolver,
		loader:    ld,
		view:      viewport.New(opts.Viewport),
		tolerance: opts.LayerTolerance,
		onSteps:   opts.OnStepCountChange,
		log:       log,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Viewport returns the controller that renders the preview.
func (p *Preview) Viewport() *viewport.Controller {
	return p.view
}

// Source returns the current source identifier.
func (p *Preview) Source() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// LastError returns the error of the most recent finished load, or nil.
func (p *Preview) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetSource starts loading id in the background. The previous load is
// invalidated first. An empty id clears the model and shows the
// placeholder.
func (p *Preview) SetSource(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unmounted {
		return
	}
	if p.tok != nil {
		p.tok.Cancel()
		p.tok = nil
	}
	p.id = id
	p.lastErr = nil

	if id == "" {
		scene.Dispose(p.view.SetModel(nil, scene.BoundingMetrics{}, nil))
		return
	}

	tok := loader.NewToken(p.ctx)
	p.tok = tok
	p.log.Debug("load started", zap.String("load", tok.String()), zap.String("source", id))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.commit(tok, p.load(tok, id))
	}()
}

// Reload loads the current source again.
func (p *Preview) Reload() {
	p.SetSource(p.Source())
}

func (p *Preview) load(tok *loader.Token, id string) loader.Result {
	content, err := p.resolver.Resolve(tok.Context(), id)
	if err != nil {
		if !tok.Active() {
			return loader.Result{Err: loader.ErrStaleLoad}
		}
		return loader.Result{Name: id, Err: err}
	}
	return p.loader.Load(tok.Context(), tok, content)
}

// commit displays a finished load if its token is still the active one.
func (p *Preview) commit(tok *loader.Token, res loader.Result) {
	log := p.log.With(zap.String("load", tok.String()))

	p.mu.Lock()
	if !tok.Active() || p.unmounted || errors.Is(res.Err, loader.ErrStaleLoad) {
		p.mu.Unlock()
		scene.Dispose(res.Scene)
		log.Debug("stale load discarded")
		return
	}
	p.tok = nil
	p.lastErr = res.Err

	if res.Err != nil {
		p.view.ShowError()
		p.mu.Unlock()
		log.Error("failed to load model", zap.String("model", res.Name), zap.Error(res.Err))
		return
	}

	for _, w := range res.Warnings {
		log.Warn("model incomplete", zap.Error(w))
	}
	layers := steps.Partition(res.Scene, p.tolerance)
	scene.Dispose(p.view.SetModel(res.Scene, res.Metrics, layers))
	onSteps := p.onSteps
	p.mu.Unlock()

	if onSteps != nil {
		onSteps(len(layers))
	}
}

// SetStepMode turns assembly step mode on or off.
func (p *Preview) SetStepMode(on bool) {
	p.view.SetStepMode(on)
}

// SetStep sets the 1-based assembly step.
func (p *Preview) SetStep(step int) {
	p.view.SetStep(step)
}

// Wait blocks until every started load has finished or been discarded.
func (p *Preview) Wait() {
	p.wg.Wait()
}

// Unmount invalidates any running load and releases the displayed model
// and placeholders. The preview cannot be used afterwards.
func (p *Preview) Unmount() {
	p.mu.Lock()
	if p.unmounted {
		p.mu.Unlock()
		return
	}
	p.unmounted = true
	if p.tok != nil {
		p.tok.Cancel()
		p.tok = nil
	}
	p.cancel()
	scene.Dispose(p.view.SetModel(nil, scene.BoundingMetrics{}, nil))
	p.mu.Unlock()

	p.wg.Wait()
	p.view.Close()
}
