// Package loader turns resolved model content into a normalized scene
// graph. LDraw models are parsed and their referenced parts fetched from
// the parts library; GLB files are decoded through glTF.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/taigrr/brickview/pkg/ldraw"
	"github.com/taigrr/brickview/pkg/parts"
	"github.com/taigrr/brickview/pkg/scene"
	"github.com/taigrr/brickview/pkg/source"
)

// DefaultConcurrency is the number of parallel sub-file fetches.
const DefaultConcurrency = 8

// Result is the outcome of one load. Exactly one of Scene and Err is set.
type Result struct {
	Scene    *scene.Node
	Metrics  scene.BoundingMetrics
	Name     string
	Warnings []error // Non-fatal problems, such as missing parts
	Err      error
}

// OK reports whether the load produced a scene.
func (r Result) OK() bool {
	return r.Err == nil && r.Scene != nil
}

// Loader loads models. It keeps the LDraw colour table across loads; the
// parts cache belongs to its Fetcher.
type Loader struct {
	mapper      parts.Mapper
	fetcher     *parts.Fetcher
	log         *zap.Logger
	concurrency int
	backends    map[string]Backend

	mu            sync.Mutex
	colours       ldraw.ColourTable
	coloursLoaded bool
	preload       singleflight.Group
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Loader) { ld.log = l }
}

// WithConcurrency sets how many sub-files are fetched in parallel.
func WithConcurrency(n int) Option {
	return func(ld *Loader) {
		if n > 0 {
			ld.concurrency = n
		}
	}
}

// WithBackend registers a backend for files with the given extension,
// e.g. ".glb".
func WithBackend(ext string, b Backend) Option {
	return func(ld *Loader) { ld.backends[strings.ToLower(ext)] = b }
}

// New creates a Loader that maps every request through mapper and
// fetches through fetcher.
func New(mapper parts.Mapper, fetcher *parts.Fetcher, opts ...Option) *Loader {
	l := &Loader{
		mapper:      mapper,
		fetcher:     fetcher,
		log:         zap.NewNop(),
		concurrency: DefaultConcurrency,
		backends:    make(map[string]Backend),
		colours:     ldraw.DefaultColours(),
	}
	if l.fetcher == nil {
		l.fetcher = parts.NewFetcher()
	}
	l.backends[".glb"] = GLBBackend{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Mapper returns the loader's part-path mapper.
func (l *Loader) Mapper() parts.Mapper {
	return l.mapper
}

// PreloadMaterials fetches LDConfig.ldr and installs its colours. Once it
// succeeds further calls do nothing; concurrent calls share one fetch.
// On failure the built-in palette stays in use and the next call retries.
func (l *Loader) PreloadMaterials(ctx context.Context) error {
	l.mu.Lock()
	loaded := l.coloursLoaded
	l.mu.Unlock()
	if loaded {
		return nil
	}

	_, err, _ := l.preload.Do("ldconfig", func() (any, error) {
		data, loc, err := l.fetcher.FetchFirst(ctx, l.mapper.Candidates("LDConfig.ldr"))
		if err != nil {
			return nil, fmt.Errorf("fetch LDConfig.ldr: %w", err)
		}
		table, err := ldraw.ParseColours(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		l.colours.Merge(table)
		l.coloursLoaded = true
		l.mu.Unlock()

		l.log.Debug("colours loaded", zap.String("url", loc), zap.Int("count", len(table)))
		return nil, nil
	})
	if err != nil {
		l.log.Warn("using built-in colours", zap.Error(err))
	}
	return err
}

// colourSnapshot returns a copy of the colour table for one build.
func (l *Loader) colourSnapshot() ldraw.ColourTable {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := make(ldraw.ColourTable, len(l.colours))
	t.Merge(l.colours)
	return t
}

// Load loads content into a normalized scene. The token is checked after
// the root file is read, after decoding and after normalizing; once it is
// inactive the scene is disposed and the result carries ErrStaleLoad.
func (l *Loader) Load(ctx context.Context, tok *Token, content source.Content) Result {
	if tok != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(tok.Context(), cancel)
		defer stop()
	}
	log := l.log.With(zap.String("load", tok.String()), zap.String("model", content.Name))

	res := Result{Name: content.Name}
	_ = l.PreloadMaterials(ctx)

	req, err := l.readRoot(ctx, content)
	if err != nil {
		res.Err = err
		return l.stale(tok, res, log)
	}
	if !live(tok) {
		return l.stale(tok, res, log)
	}

	b := newBuild(l, log)
	backend := l.backendFor(req)
	if backend == nil {
		backend = b
	}
	root, err := settle(ctx, backend, req)
	res.Warnings = b.Warnings()
	if err != nil {
		if !live(tok) {
			return l.stale(tok, res, log)
		}
		res.Err = err
		return res
	}
	if !live(tok) {
		scene.Dispose(root)
		return l.stale(tok, res, log)
	}

	res.Metrics = scene.Normalize(root)
	if !live(tok) {
		scene.Dispose(root)
		return l.stale(tok, res, log)
	}

	res.Scene = root
	log.Info("model loaded",
		zap.Int("parts", len(root.Children)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Float64("diagonal", res.Metrics.Diagonal),
	)
	return res
}

// live reports whether a load should continue. A nil token never goes
// stale.
func live(tok *Token) bool {
	return tok == nil || tok.Active()
}

// stale converts a result for an inactive token into ErrStaleLoad.
func (l *Loader) stale(tok *Token, res Result, log *zap.Logger) Result {
	if live(tok) {
		return res
	}
	log.Debug("discarding stale load", zap.NamedError("cause", res.Err))
	res.Scene = nil
	res.Err = ErrStaleLoad
	return res
}

// readRoot fetches or unpacks the root file.
func (l *Loader) readRoot(ctx context.Context, content source.Content) (Request, error) {
	switch content.Kind {
	case source.TextContent:
		return Request{Name: content.Name, Data: []byte(content.Text)}, nil
	case source.URLContent:
		loc := l.mapper.Map(content.URL)
		data, err := l.fetcher.Fetch(ctx, loc)
		if err != nil {
			return Request{}, fmt.Errorf("fetch model %s: %w", loc, err)
		}
		name := content.Name
		if name == "" {
			name = parts.Filename(content.URL)
		}
		return Request{Name: name, Location: loc, Data: data}, nil
	default:
		return Request{}, errors.New("unknown content kind")
	}
}

// backendFor picks a registered backend by extension, then by content
// sniffing. A nil result means LDraw.
func (l *Loader) backendFor(req Request) Backend {
	name := strings.ToLower(req.Name)
	for ext, b := range l.backends {
		if strings.HasSuffix(name, ext) {
			return b
		}
	}
	if bytes.HasPrefix(req.Data, glbMagic) {
		if b, ok := l.backends[".glb"]; ok {
			return b
		}
	}
	return nil
}
